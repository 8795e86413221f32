package report

import (
	"fmt"
	"math"
	"strconv"

	"podaudit/internal/annotate"
)

// InvalidGroupError reports a record set that cannot be grouped by
// distributor.
type InvalidGroupError struct {
	Reason string
}

func (e *InvalidGroupError) Error() string {
	return fmt.Sprintf("invalid distributor group: %s", e.Reason)
}

// Summary is one distributor's audit result: the counts, the pass rate, the
// failure attribution when the rate is below 100%, the bilingual message pair,
// and the distributor's own rows for export.
type Summary struct {
	Distributor  string
	Total        int
	Qualified    int
	Rate         float64 // percentage, 2 decimal places
	WorstService string  // empty when Rate == 100
	CommonReason string  // empty when Rate == 100
	MessageZH    string
	MessageEN    string
	Records      []annotate.Record
}

// Aggregate groups the annotated record set by distributor (first-appearance
// order) and computes each group's summary. A record with an empty distributor
// makes the whole aggregation fail; silently grouping blanks together would
// hide an annotation bug.
func Aggregate(records []annotate.Record) ([]Summary, error) {
	order := make([]string, 0)
	byDSP := make(map[string][]annotate.Record)
	for _, r := range records {
		if r.Distributor == "" {
			return nil, &InvalidGroupError{Reason: fmt.Sprintf("record for tno %q has no distributor", r.TNO)}
		}
		if _, ok := byDSP[r.Distributor]; !ok {
			order = append(order, r.Distributor)
		}
		byDSP[r.Distributor] = append(byDSP[r.Distributor], r)
	}

	summaries := make([]Summary, 0, len(order))
	for _, dsp := range order {
		s, err := summarize(dsp, byDSP[dsp])
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func summarize(dsp string, group []annotate.Record) (Summary, error) {
	if len(group) == 0 {
		// Unreachable via Aggregate's group-by, but callers invoking this
		// directly get a fail-fast instead of a divide by zero.
		return Summary{}, &InvalidGroupError{Reason: fmt.Sprintf("distributor %q has no records", dsp)}
	}

	s := Summary{Distributor: dsp, Total: len(group), Records: group}
	for _, r := range group {
		if r.Qualified {
			s.Qualified++
		}
	}
	s.Rate = round2(float64(s.Qualified) / float64(s.Total) * 100)

	if s.Rate == 100 {
		s.MessageZH = fmt.Sprintf("中文版：今天【%s】POD抽查共【%d】件，100%%合格， 不错继续保持！", dsp, s.Total)
		s.MessageEN = fmt.Sprintf("English: Today, DSP %s has %d PODs checked, 100%% qualified. Great job, keep it up!", dsp, s.Total)
		return s, nil
	}

	s.WorstService = worstService(group)
	s.CommonReason = commonReason(group, s.WorstService)
	s.MessageZH = fmt.Sprintf("中文版：今天【%s】POD共查【%d】件，合格率为【%s%%】，其中司机【%s】有不合格件，主要原因是【%s】",
		dsp, s.Total, formatRate(s.Rate), s.WorstService, s.CommonReason)
	s.MessageEN = fmt.Sprintf("English: Today, DSP %s had %d PODs checked with a %s%% pass rate. Service number %s had some failures, mainly due to %s.",
		dsp, s.Total, formatRate(s.Rate), s.WorstService, s.CommonReason)
	return s, nil
}

// worstService returns the service number with the most unqualified rows.
// Ties go to the service appearing first in group row order.
func worstService(group []annotate.Record) string {
	order := make([]string, 0)
	failures := make(map[string]int)
	for _, r := range group {
		if _, ok := failures[r.ServiceNumber]; !ok {
			order = append(order, r.ServiceNumber)
			failures[r.ServiceNumber] = 0
		}
		if !r.Qualified {
			failures[r.ServiceNumber]++
		}
	}

	worst, best := "", -1
	for _, svc := range order {
		if failures[svc] > best {
			worst, best = svc, failures[svc]
		}
	}
	return worst
}

// commonReason returns the most frequent failure reason among the worst
// service's unqualified rows. Ties go to the first-seen reason with the max
// count.
func commonReason(group []annotate.Record, service string) string {
	order := make([]string, 0)
	counts := make(map[string]int)
	for _, r := range group {
		if r.ServiceNumber != service || r.Qualified {
			continue
		}
		if _, ok := counts[r.Reason]; !ok {
			order = append(order, r.Reason)
		}
		counts[r.Reason]++
	}

	reason, best := "", -1
	for _, label := range order {
		if counts[label] > best {
			reason, best = label, counts[label]
		}
	}
	return reason
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// formatRate renders the rounded rate without trailing zeros (93.33 as is,
// 80 rather than 80.00).
func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}
