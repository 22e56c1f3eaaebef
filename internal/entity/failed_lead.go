package entity

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FailedLead is a lead that could not be delivered. It doubles as a retry queue entry:
// Sent, LastStatus and LastSentAt are overwritten on every retry attempt.
type FailedLead struct {
	ID         int64      `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	RequestID  string     `json:"request_id"`
	Channel    Channel    `json:"channel"`
	ErrorType  string     `json:"error_type"`
	Error      string     `json:"error"`
	Status     int        `json:"status,omitempty"` // status of the first failure, 0 when none
	Response   string     `json:"response,omitempty"`
	Lead       LeadRecord `json:"lead"`
	Sent       bool       `json:"sent"`
	LastStatus int        `json:"last_status,omitempty"` // 0 means absent
	LastSentAt *time.Time `json:"last_sent_at,omitempty"`
}

func (f FailedLead) HasLastStatus() bool {
	return f.LastStatus != 0
}

// Apply returns a copy of f with the non-nil patch fields merged in.
func (f FailedLead) Apply(p FailedLeadPatch) FailedLead {
	if p.Sent != nil {
		f.Sent = *p.Sent
	}
	if p.LastStatus != nil {
		f.LastStatus = *p.LastStatus
	}
	if p.LastSentAt != nil {
		t := *p.LastSentAt
		f.LastSentAt = &t
	}
	return f
}

// FailedLeadPatch holds field-level changes; nil fields are left untouched.
// A LastStatus pointing at 0 clears the status.
type FailedLeadPatch struct {
	Sent       *bool
	LastStatus *int
	LastSentAt *time.Time
}

// Selection decides which failed leads a retry batch targets.
type Selection string

const (
	SelectAll    Selection = "all"
	SelectUnsent Selection = "unsent"
	SelectFailed Selection = "failed"
	SelectIDs    Selection = "ids"
)

func ParseSelection(s string) (Selection, error) {
	switch Selection(strings.ToLower(strings.TrimSpace(s))) {
	case "", SelectAll:
		return SelectAll, nil
	case SelectUnsent:
		return SelectUnsent, nil
	case SelectFailed:
		return SelectFailed, nil
	case SelectIDs:
		return SelectIDs, nil
	}
	return "", fmt.Errorf("unknown selection %q", s)
}

// FailedLeadFilter is a predicate over failed leads. Zero values match everything.
type FailedLeadFilter struct {
	Campaign  string
	Source    string
	ErrorType string
	IDs       []int64
	Selection Selection
}

func (f FailedLeadFilter) Match(l FailedLead) bool {
	if f.Campaign != "" && l.Lead.Get(FieldCampaignName) != f.Campaign {
		return false
	}
	if f.Source != "" && l.Lead.Get(FieldCampaignSource) != f.Source {
		return false
	}
	if f.ErrorType != "" && l.ErrorType != f.ErrorType {
		return false
	}
	if len(f.IDs) > 0 && !containsID(f.IDs, l.ID) {
		return false
	}
	switch f.Selection {
	case SelectUnsent:
		return !l.Sent
	case SelectFailed:
		return l.HasLastStatus() && !IsSuccessStatus(l.LastStatus)
	}
	return true
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type FailedLeadRepository interface {
	Append(ctx context.Context, lead *FailedLead) error
	Scan(ctx context.Context, filter FailedLeadFilter) ([]FailedLead, error)
	Update(ctx context.Context, id int64, patch FailedLeadPatch) error
	Remove(ctx context.Context, ids []int64) error
}
