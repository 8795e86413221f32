package sample

import (
	"math/rand"
	"strconv"
	"strings"
)

// Options controls eligibility filtering and the per-service draw.
type Options struct {
	ExcludedPrefix string   // service numbers starting with this are out of scope
	RequiredStatus int      // only rows in this state are eligible
	Cap            int      // max rows drawn per service number
	Seed           int64    // PRNG seed; fixed so repeated runs sample identically
	DropColumns    []string // non-essential columns removed before dedup
}

// DefaultOptions returns the audit defaults: carrier segment 550 excluded,
// delivered-awaiting-review state 203, 30 rows per service, seed 42.
func DefaultOptions() Options {
	return Options{
		ExcludedPrefix: "550",
		RequiredStatus: 203,
		Cap:            30,
		Seed:           42,
		DropColumns:    []string{"199_pathtime"},
	}
}

// Group is one service number's sampled rows, in drawn order.
type Group struct {
	ServiceNumber string
	Rows          [][]string
}

// Sample filters the raw delivery table down to eligible rows and draws a
// capped, deterministic sample per service number.
//
// Steps, in order: drop non-essential columns, remove exact-duplicate rows,
// exclude service numbers with the excluded prefix (prefix match on the cell
// text, whatever the source cell type was), keep only rows in the required
// status, then draw min(cap, group size) rows without replacement from each
// service-number group. Identical input and seed always produce an identical
// sample; groups appear in first-appearance order of the service number.
//
// An input table without the service_number or state column fails with
// *MissingColumnError. Empty output is not an error.
func Sample(tbl *Table, opts Options) (*Table, error) {
	if opts.Cap <= 0 {
		opts.Cap = DefaultOptions().Cap
	}

	work := dropColumns(tbl, opts.DropColumns)
	work = deduplicate(work)

	serviceIdx, err := work.RequireColumn(ServiceColumn)
	if err != nil {
		return nil, err
	}
	statusIdx, err := work.RequireColumn(StatusColumn)
	if err != nil {
		return nil, err
	}

	eligible := &Table{Header: work.Header}
	for i := range work.Rows {
		service := work.Cell(i, serviceIdx)
		if opts.ExcludedPrefix != "" && strings.HasPrefix(service, opts.ExcludedPrefix) {
			continue
		}
		if !statusMatches(work.Cell(i, statusIdx), opts.RequiredStatus) {
			continue
		}
		eligible.Rows = append(eligible.Rows, work.Rows[i])
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	out := &Table{Header: work.Header}
	for _, group := range partition(eligible, serviceIdx) {
		for _, row := range draw(rng, group.Rows, opts.Cap) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

// Partition splits a table into per-service groups in first-appearance order.
// It is used on sampler output to build the annotation work list, so the
// service column is expected to exist.
func Partition(tbl *Table) ([]Group, error) {
	serviceIdx, err := tbl.RequireColumn(ServiceColumn)
	if err != nil {
		return nil, err
	}
	return partition(tbl, serviceIdx), nil
}

func partition(tbl *Table, serviceIdx int) []Group {
	order := make([]string, 0)
	byService := make(map[string]*Group)
	for i := range tbl.Rows {
		service := tbl.Cell(i, serviceIdx)
		g, ok := byService[service]
		if !ok {
			g = &Group{ServiceNumber: service}
			byService[service] = g
			order = append(order, service)
		}
		g.Rows = append(g.Rows, tbl.Rows[i])
	}

	groups := make([]Group, 0, len(order))
	for _, service := range order {
		groups = append(groups, *byService[service])
	}
	return groups
}

// draw selects min(cap, len(rows)) rows without replacement via a partial
// Fisher-Yates shuffle, consuming the shared rng in group order so the whole
// run is reproducible.
func draw(rng *rand.Rand, rows [][]string, limit int) [][]string {
	n := len(rows)
	if n <= limit {
		return rows
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	out := make([][]string, 0, limit)
	for i := 0; i < limit; i++ {
		j := i + rng.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
		out = append(out, rows[idx[i]])
	}
	return out
}

// statusMatches compares a status cell to the required numeric status.
// Spreadsheet decoders render numeric cells in whatever form the file stored,
// so "203", "203.0" and " 203 " all match 203. Non-numeric cells never match.
func statusMatches(cell string, want int) bool {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return false
	}
	if n, err := strconv.Atoi(cell); err == nil {
		return n == want
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return false
	}
	return f == float64(want)
}
