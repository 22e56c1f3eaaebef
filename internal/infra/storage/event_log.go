package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/xavierca1/lead-relay/internal/entity"
)

const (
	colTimestamp  = "Timestamp"
	colStatus     = "Status"
	colError      = "Error"
	colRequestID  = "RequestID"
	colChannel    = "Channel"
	colID         = "ID"
	colErrorType  = "ErrorType"
	colResponse   = "Response"
	colSent       = "Sent"
	colLastStatus = "LastStatus"
	colLastSentAt = "LastSentAt"
)

var eventLogHeader = append([]string{colTimestamp, colStatus, colError, colRequestID, colChannel}, entity.LeadFields...)

// EventLog is an append-only CSV file of delivered leads. Several processes may share
// one file.
type EventLog struct {
	path string
	lock *fileLock
}

func NewEventLog(path string) *EventLog {
	return &EventLog{path: path, lock: newFileLock(path)}
}

func (l *EventLog) Path() string { return l.path }

func (l *EventLog) Append(_ context.Context, entry entity.EventLogEntry) error {
	row := append([]string{
		entry.Timestamp.Format(time.RFC3339Nano),
		strconv.Itoa(entry.Status),
		entry.Error,
		entry.RequestID,
		string(entry.Channel),
	}, entry.Lead.Values()...)

	unlock, err := l.lock.lock(false)
	if err != nil {
		return &entity.StoreIOError{Op: "append", Path: l.path, Err: err}
	}
	defer unlock()
	if err := appendRow(l.path, eventLogHeader, row); err != nil {
		return &entity.StoreIOError{Op: "append", Path: l.path, Err: err}
	}
	return nil
}

func (l *EventLog) Scan(_ context.Context, filter entity.EventLogFilter) ([]entity.EventLogEntry, error) {
	unlock, err := l.lock.lock(true)
	if err != nil {
		return nil, &entity.StoreIOError{Op: "scan", Path: l.path, Err: err}
	}
	t, err := readTable(l.path)
	unlock()
	if err != nil {
		return nil, &entity.StoreIOError{Op: "scan", Path: l.path, Err: err}
	}

	entries := make([]entity.EventLogEntry, 0, len(t.rows))
	for _, row := range t.rows {
		entry := entity.EventLogEntry{
			Timestamp: parseTime(t.get(row, colTimestamp)),
			Status:    atoi(t.get(row, colStatus)),
			Error:     t.get(row, colError),
			RequestID: t.get(row, colRequestID),
			Channel:   entity.Channel(t.get(row, colChannel)),
			Lead:      leadFromRow(t, row),
		}
		if filter.Match(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func leadFromRow(t *table, row []string) entity.LeadRecord {
	lead := entity.LeadRecord{}
	for _, f := range entity.LeadFields {
		if v := t.get(row, f); v != "" {
			lead[f] = v
		}
	}
	return lead
}

// parseTime accepts RFC 3339 and the ISO format without zone written by older files.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts
	}
	if ts, err := time.ParseInLocation("2006-01-02T15:04:05.999999", s, time.Local); err == nil {
		return ts
	}
	return time.Time{}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
