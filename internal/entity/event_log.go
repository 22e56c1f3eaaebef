package entity

import (
	"context"
	"time"
)

// EventLogEntry records one successful delivery. Entries are never changed once appended.
type EventLogEntry struct {
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id"`
	Channel   Channel    `json:"channel"`
	Status    int        `json:"status"`
	Error     string     `json:"error,omitempty"`
	Lead      LeadRecord `json:"lead"`
}

type EventLogFilter struct {
	Campaign string
	Source   string
	From     *time.Time
}

func (f EventLogFilter) Match(e EventLogEntry) bool {
	if f.Campaign != "" && e.Lead.Get(FieldCampaignName) != f.Campaign {
		return false
	}
	if f.Source != "" && e.Lead.Get(FieldCampaignSource) != f.Source {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	return true
}

type EventLogRepository interface {
	Append(ctx context.Context, entry EventLogEntry) error
	Scan(ctx context.Context, filter EventLogFilter) ([]EventLogEntry, error)
}
