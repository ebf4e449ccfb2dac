package storage

// Package storage persists the schedule set across restarts.
//
// The durable shape is a flat mapping of stringified schedule id -> record
// plus a sibling next_id counter. That shape is the backward-compatibility
// contract; every driver stores exactly it.
