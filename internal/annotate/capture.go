package annotate

import (
	"fmt"
	"time"
)

// Record is one reviewed POD. ServiceNumber is the grouping key the failure is
// attributed to; the legacy export format writes it under the "Driver id"
// header, which xlsxio handles.
type Record struct {
	TNO           string
	Distributor   string
	Date          string // ISO 8601 date, e.g. 2026-08-29
	Qualified     bool
	Reason        string // human-readable label, never the code
	ServiceNumber string
}

// Quality returns the Yes/No form used in exports and aggregation.
func (r Record) Quality() string {
	if r.Qualified {
		return "Yes"
	}
	return "No"
}

// InvalidGroupError reports a capture group that cannot be finalized.
type InvalidGroupError struct {
	ServiceNumber string
	Reason        string
}

func (e *InvalidGroupError) Error() string {
	return fmt.Sprintf("invalid group %q: %s", e.ServiceNumber, e.Reason)
}

// Capture collects reviewer judgments group by group: BeginGroup, then
// SetDistributor once, then Judge per sampled row, then EndGroup. Finalize
// returns the full record set. The protocol is deliberately UI-agnostic; the
// HTTP shell drives it from a JSON batch, but anything that can call these
// four methods in order can act as the collector.
type Capture struct {
	date    time.Time
	records []Record
	current *captureGroup
}

type captureGroup struct {
	serviceNumber string
	distributor   string
	records       []Record
}

// NewCapture starts a capture session for one report date.
func NewCapture(date time.Time) *Capture {
	return &Capture{date: date}
}

func (c *Capture) BeginGroup(serviceNumber string) error {
	if c.current != nil {
		return &InvalidGroupError{ServiceNumber: c.current.serviceNumber, Reason: "previous group not ended"}
	}
	if serviceNumber == "" {
		return &InvalidGroupError{ServiceNumber: serviceNumber, Reason: "service number is empty"}
	}
	c.current = &captureGroup{serviceNumber: serviceNumber}
	return nil
}

// SetDistributor records the distributor name applied to every row in the
// current group.
func (c *Capture) SetDistributor(name string) error {
	if c.current == nil {
		return &InvalidGroupError{Reason: "no group in progress"}
	}
	c.current.distributor = name
	return nil
}

// Judge records one reviewed row. Qualified rows always carry the reserved
// qualified code; unqualified rows need one of the failure reason codes.
func (c *Capture) Judge(tno string, qualified bool, reasonCode string) error {
	if c.current == nil {
		return &InvalidGroupError{Reason: "no group in progress"}
	}
	if qualified {
		reasonCode = QualifiedCode
	} else {
		if reasonCode == QualifiedCode {
			return fmt.Errorf("tno %s: reason %q is reserved for qualified PODs", tno, QualifiedCode)
		}
		if _, ok := ReasonLabel(reasonCode); !ok {
			return fmt.Errorf("tno %s: unknown reason code %q", tno, reasonCode)
		}
	}
	label, _ := ReasonLabel(reasonCode)
	c.current.records = append(c.current.records, Record{
		TNO:           tno,
		Date:          c.date.Format("2006-01-02"),
		Qualified:     qualified,
		Reason:        label,
		ServiceNumber: c.current.serviceNumber,
	})
	return nil
}

// EndGroup closes the current group, stamping the distributor onto its rows.
// A group without a distributor name cannot be finalized.
func (c *Capture) EndGroup() error {
	if c.current == nil {
		return &InvalidGroupError{Reason: "no group in progress"}
	}
	if c.current.distributor == "" {
		return &InvalidGroupError{ServiceNumber: c.current.serviceNumber, Reason: "distributor name is required"}
	}
	for i := range c.current.records {
		c.current.records[i].Distributor = c.current.distributor
	}
	c.records = append(c.records, c.current.records...)
	c.current = nil
	return nil
}

// Finalize returns the collected record set. An unended group is a protocol
// violation and fails rather than silently dropping its rows.
func (c *Capture) Finalize() ([]Record, error) {
	if c.current != nil {
		return nil, &InvalidGroupError{ServiceNumber: c.current.serviceNumber, Reason: "group not ended"}
	}
	return c.records, nil
}
