package storage

import (
	"context"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/xavierca1/lead-relay/internal/entity"
)

var failedLeadHeader = func() []string {
	h := []string{colID, colTimestamp, colRequestID, colChannel, colErrorType, colError, colStatus, colResponse}
	h = append(h, entity.LeadFields...)
	return append(h, colSent, colLastStatus, colLastSentAt)
}()

const maxResponseSnippet = 500

// FailedLeads keeps undelivered leads in a CSV file. Appends add a row, every other
// mutation rewrites the whole file under the writer lock. The lock is shared with other
// processes opening the same path.
type FailedLeads struct {
	path string
	lock *fileLock
}

func NewFailedLeads(path string) *FailedLeads {
	return &FailedLeads{path: path, lock: newFileLock(path)}
}

func (s *FailedLeads) Path() string { return s.path }

// Append assigns the next id. Ids are never handed out twice: the highest id issued is
// kept in a sidecar file so removing the newest rows does not free their ids.
func (s *FailedLeads) Append(_ context.Context, lead *entity.FailedLead) error {
	unlock, err := s.lock.lock(false)
	if err != nil {
		return &entity.StoreIOError{Op: "append", Path: s.path, Err: err}
	}
	defer unlock()

	leads, err := s.loadLocked()
	if err != nil {
		return &entity.StoreIOError{Op: "append", Path: s.path, Err: err}
	}
	maxID, err := readSequence(s.seqPath())
	if err != nil {
		return &entity.StoreIOError{Op: "append", Path: s.seqPath(), Err: err}
	}
	for _, l := range leads {
		if l.ID > maxID {
			maxID = l.ID
		}
	}
	lead.ID = maxID + 1

	if err := appendRow(s.path, failedLeadHeader, failedLeadRow(*lead)); err != nil {
		return &entity.StoreIOError{Op: "append", Path: s.path, Err: err}
	}
	if err := writeSequence(s.seqPath(), lead.ID); err != nil {
		return &entity.StoreIOError{Op: "append", Path: s.seqPath(), Err: err}
	}
	return nil
}

func (s *FailedLeads) seqPath() string { return s.path + ".seq" }

// Scan returns a snapshot of the records matching filter. Every call re-reads the file.
func (s *FailedLeads) Scan(_ context.Context, filter entity.FailedLeadFilter) ([]entity.FailedLead, error) {
	unlock, err := s.lock.lock(true)
	if err != nil {
		return nil, &entity.StoreIOError{Op: "scan", Path: s.path, Err: err}
	}
	leads, err := s.loadLocked()
	unlock()
	if err != nil {
		return nil, &entity.StoreIOError{Op: "scan", Path: s.path, Err: err}
	}

	out := make([]entity.FailedLead, 0, len(leads))
	for _, l := range leads {
		if filter.Match(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *FailedLeads) Update(_ context.Context, id int64, patch entity.FailedLeadPatch) error {
	unlock, err := s.lock.lock(false)
	if err != nil {
		return &entity.StoreIOError{Op: "update", Path: s.path, Err: err}
	}
	defer unlock()

	leads, err := s.loadLocked()
	if err != nil {
		return &entity.StoreIOError{Op: "update", Path: s.path, Err: err}
	}
	found := false
	for i := range leads {
		if leads[i].ID == id {
			leads[i] = leads[i].Apply(patch)
			found = true
			break
		}
	}
	if !found {
		return &entity.NotFoundError{ID: id}
	}
	if err := s.saveLocked(leads); err != nil {
		return &entity.StoreIOError{Op: "update", Path: s.path, Err: err}
	}
	return nil
}

// Remove deletes every record whose id is in ids. Unknown ids are ignored.
func (s *FailedLeads) Remove(_ context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	unlock, err := s.lock.lock(false)
	if err != nil {
		return &entity.StoreIOError{Op: "remove", Path: s.path, Err: err}
	}
	defer unlock()

	leads, err := s.loadLocked()
	if err != nil {
		return &entity.StoreIOError{Op: "remove", Path: s.path, Err: err}
	}
	kept := leads[:0]
	for _, l := range leads {
		if _, ok := drop[l.ID]; !ok {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(leads) {
		return nil
	}
	if err := s.saveLocked(kept); err != nil {
		return &entity.StoreIOError{Op: "remove", Path: s.path, Err: err}
	}
	return nil
}

func (s *FailedLeads) loadLocked() ([]entity.FailedLead, error) {
	t, err := readTable(s.path)
	if err != nil {
		return nil, err
	}
	leads := make([]entity.FailedLead, 0, len(t.rows))
	for i, row := range t.rows {
		l, err := failedLeadFromRow(t, row)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i+2)
		}
		leads = append(leads, l)
	}
	return leads, nil
}

func (s *FailedLeads) saveLocked(leads []entity.FailedLead) error {
	rows := make([][]string, 0, len(leads))
	for _, l := range leads {
		rows = append(rows, failedLeadRow(l))
	}
	return writeTable(s.path, failedLeadHeader, rows)
}

func failedLeadRow(l entity.FailedLead) []string {
	row := []string{
		strconv.FormatInt(l.ID, 10),
		l.Timestamp.Format(time.RFC3339Nano),
		l.RequestID,
		string(l.Channel),
		l.ErrorType,
		l.Error,
		optionalInt(l.Status),
		truncate(l.Response, maxResponseSnippet),
	}
	row = append(row, l.Lead.Values()...)
	lastSent := ""
	if l.LastSentAt != nil {
		lastSent = l.LastSentAt.Format(time.RFC3339Nano)
	}
	return append(row, strconv.FormatBool(l.Sent), optionalInt(l.LastStatus), lastSent)
}

func failedLeadFromRow(t *table, row []string) (entity.FailedLead, error) {
	id, err := strconv.ParseInt(t.get(row, colID), 10, 64)
	if err != nil {
		return entity.FailedLead{}, errors.Wrap(err, "parse id")
	}
	l := entity.FailedLead{
		ID:         id,
		Timestamp:  parseTime(t.get(row, colTimestamp)),
		RequestID:  t.get(row, colRequestID),
		Channel:    entity.Channel(t.get(row, colChannel)),
		ErrorType:  t.get(row, colErrorType),
		Error:      t.get(row, colError),
		Status:     atoi(t.get(row, colStatus)),
		Response:   t.get(row, colResponse),
		Lead:       leadFromRow(t, row),
		Sent:       parseBool(t.get(row, colSent)),
		LastStatus: atoi(t.get(row, colLastStatus)),
	}
	if v := t.get(row, colLastSentAt); v != "" {
		ts := parseTime(v)
		l.LastSentAt = &ts
	}
	return l, nil
}

func parseBool(s string) bool {
	switch s {
	case "true", "True", "TRUE", "1", "yes":
		return true
	}
	return false
}

func optionalInt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// truncate cuts s to at most n bytes without splitting a character.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
