// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package state

// AccessKindLog discriminates one AccessLog entry's direction.
type AccessKindLog int

const (
	LogRead AccessKindLog = iota
	LogWrite
)

func (k AccessKindLog) String() string {
	if k == LogWrite {
		return "write"
	}
	return "read"
}

// AccessRecord is one logged memory or register touch: its direction,
// address (memory) or offset (register), size, and the value observed.
type AccessRecord struct {
	Kind    AccessKindLog
	Space   string
	Offset  uint64
	Size    int
	Value   []byte
}

// AccessLog accumulates AccessRecords in order, capped at Limit entries
// (0 means unbounded).
type AccessLog struct {
	Limit   int
	entries []AccessRecord
}

// NewAccessLog constructs an AccessLog capped at limit entries (0 means
// unbounded; the oldest entries are dropped once limit is exceeded).
func NewAccessLog(limit int) *AccessLog {
	return &AccessLog{Limit: limit}
}

// Record appends one access, evicting the oldest entry first if Limit is
// exceeded.
func (l *AccessLog) Record(rec AccessRecord) {
	l.entries = append(l.entries, rec)
	if l.Limit > 0 && len(l.entries) > l.Limit {
		l.entries = l.entries[len(l.entries)-l.Limit:]
	}
}

// Entries returns every recorded access, oldest first.
func (l *AccessLog) Entries() []AccessRecord { return l.entries }

// Clear discards every recorded access.
func (l *AccessLog) Clear() { l.entries = nil }
