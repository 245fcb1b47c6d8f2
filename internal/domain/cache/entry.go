// Package cache holds the cached search result types.
package cache

import (
	"strings"
	"time"

	"github.com/kailas-cloud/jobfed/internal/domain/aggregation"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
)

// Tier names the cache level that produced a hit.
type Tier string

// Cache tiers.
const (
	TierNone      Tier = ""
	TierRequester Tier = "requester"
	TierLocation  Tier = "location"
	TierStale     Tier = "stale"
)

// Key identifies a cached search.
type Key struct {
	RequesterID string `json:"requester_id"`
	Query       string `json:"query"`
	Location    string `json:"location,omitempty"`
	Remote      *bool  `json:"remote,omitempty"`
}

// Normalized lowercases and trims the free-text parts.
func (k Key) Normalized() Key {
	k.RequesterID = strings.TrimSpace(k.RequesterID)
	k.Query = strings.Join(strings.Fields(strings.ToLower(k.Query)), " ")
	k.Location = strings.ToLower(strings.TrimSpace(k.Location))
	return k
}

// Entry is one cached search result.
type Entry struct {
	Key       Key                  `json:"key"`
	Records   []record.Ranked      `json:"records"`
	Metadata  aggregation.Metadata `json:"metadata"`
	CreatedAt time.Time            `json:"created_at"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// Age is the time elapsed since the entry was written.
func (e *Entry) Age(now time.Time) time.Duration { return now.Sub(e.CreatedAt) }

// Expired reports whether the entry is past its retention.
func (e *Entry) Expired(now time.Time) bool { return !now.Before(e.ExpiresAt) }

// Hit is a successful cache read.
type Hit struct {
	Entry Entry
	Tier  Tier
}
