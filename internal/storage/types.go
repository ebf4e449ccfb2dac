package storage

import (
	"errors"
	"strconv"
	"time"

	"macroschedd/internal/schedule"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free snapshot file (JSON, atomic rename)
//   - "sqlite": SQLite database file
//   - "bolt": bbolt database file
//
// If Driver is empty or "none", storage is disabled and schedules live only
// in memory for the process lifetime.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// State is the durable snapshot of the scheduler.
type State struct {
	Schedules map[string]*schedule.Schedule `json:"schedules"`
	NextID    int64                         `json:"next_id"`
}

// EmptyState is what Load returns when no prior data exists. Absence of data
// is not an error: the engine starts with an empty set and ids from 1.
func EmptyState() *State {
	return &State{Schedules: map[string]*schedule.Schedule{}, NextID: 1}
}

func (st *State) normalize() *State {
	if st == nil {
		return EmptyState()
	}
	if st.Schedules == nil {
		st.Schedules = map[string]*schedule.Schedule{}
	}
	if st.NextID < 1 {
		st.NextID = 1
	}
	return st
}

// Key renders a schedule id the way the durable shape expects it.
func Key(id int64) string { return strconv.FormatInt(id, 10) }
