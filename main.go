package main

import (
	"log"
	"os"

	"podaudit/internal/annotate"
	slacknotify "podaudit/internal/integrations/slack"
)

func main() {
	cfg := LoadConfig()

	os.MkdirAll(cfg.ReportOutputDir, 0755)

	store := annotate.NewStore(cfg.SessionTTL())
	notifier := slacknotify.New(cfg.SlackBotToken, cfg.SlackChannelID)
	if notifier == nil {
		log.Println("Slack delivery disabled (slack_bot_token not set)")
	}

	StartSweepScheduler(cfg, store)

	log.Println("Starting POD Audit service...")
	if err := StartServer(cfg, store, notifier); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
