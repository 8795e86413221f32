package main

import (
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"podaudit/internal/annotate"
)

// StartSweepScheduler starts a cron-based scheduler that periodically removes
// idle sessions from the store. The schedule is a standard 5-field cron
// expression (minute hour day-of-month month day-of-week).
// Examples: "*/30 * * * *" (every 30 minutes), "0 2 * * *" (daily 2am).
func StartSweepScheduler(cfg Config, store *annotate.Store) {
	schedule := strings.TrimSpace(cfg.SweepSchedule)
	if schedule == "" || cfg.SessionTTLMinutes == 0 {
		log.Println("Session sweep disabled")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid sweep_schedule '%s': %v, sweep disabled", schedule, err)
		return
	}

	log.Printf("Session sweep scheduled (cron: %s, ttl: %dm)", schedule, cfg.SessionTTLMinutes)

	go func() {
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			time.Sleep(next.Sub(now))

			if removed := store.Sweep(); removed > 0 {
				log.Printf("Swept %d expired sessions, %d live", removed, store.Len())
			}
		}
	}()
}
