// Package searchrun describes one executed search for the audit log.
package searchrun

import "time"

// Run is the summary of one search as written to the search log.
type Run struct {
	ID           string
	RequesterID  string
	Query        string
	Location     string
	Origin       string
	Cached       bool
	FallbackUsed bool
	SourceCount  int
	TotalCount   int
	UniqueCount  int
	TotalCost    float64
	Duration     time.Duration
	StartedAt    time.Time
	Error        string
}
