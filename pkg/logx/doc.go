// Package logx is a small zerolog wrapper used by the storage layer.
//
// The zero value is a safe no-op logger, so storage code can log without
// nil checks even when the caller passed nothing.
package logx
