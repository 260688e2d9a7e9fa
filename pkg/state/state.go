// Package state manages the connector's resumption state: a single
// last_updated timestamp carried between sync runs.
//
// The cursor is overwritten unconditionally after every run and is never
// used to bound the fetch. It is an audit marker of the last sync time,
// not a true incremental cursor.
package state

import (
	"fmt"
	"time"
)

// TimeFormat is the wire format for the cursor value.
const TimeFormat = "2006-01-02T15:04:05Z"

// DefaultCursor is the cursor value used when no prior state exists.
const DefaultCursor = "2000-01-01T00:00:00Z"

// SyncState is the process-wide resumption state.
type SyncState struct {
	// LastUpdated is the wall-clock time of the most recent sync run.
	LastUpdated string `json:"last_updated"`
}

// Default returns the state used when nothing has been persisted yet.
func Default() SyncState {
	return SyncState{LastUpdated: DefaultCursor}
}

// FromTime builds a state carrying the given time as cursor.
func FromTime(t time.Time) SyncState {
	return SyncState{LastUpdated: t.UTC().Format(TimeFormat)}
}

// Time parses the cursor value.
func (s SyncState) Time() (time.Time, error) {
	t, err := time.Parse(TimeFormat, s.LastUpdated)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cursor %q: %w", s.LastUpdated, err)
	}
	return t, nil
}
