package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xavierca1/lead-relay/internal/entity"
)

// StatsTimeLayout formats LeadStats.LastTime.
const StatsTimeLayout = "2006-01-02 15:04"

type LeadStats struct {
	LeadCount int     `json:"lead_count"`
	LastTime  *string `json:"last_time"`
}

type Dashboard struct {
	BySource          map[string]int `json:"by_source"`
	FailedCount       int            `json:"failed_count"`
	FailedByErrorType map[string]int `json:"failed_by_error_type"`
	UnsentCount       int            `json:"unsent_count"`
}

type LogsView struct {
	Entries   []entity.EventLogEntry `json:"entries"`
	Campaigns []string               `json:"campaigns"`
	Sources   []string               `json:"sources"`
}

type FailedLogsView struct {
	Leads      []entity.FailedLead `json:"leads"`
	ErrorTypes []string            `json:"error_types"`
}

// ReportsUseCase answers the read-only questions about both stores.
type ReportsUseCase struct {
	EventLog entity.EventLogRepository
	Failed   entity.FailedLeadRepository
}

func NewReportsUseCase(eventLog entity.EventLogRepository, failed entity.FailedLeadRepository) *ReportsUseCase {
	return &ReportsUseCase{EventLog: eventLog, Failed: failed}
}

func (uc *ReportsUseCase) Stats(ctx context.Context) (*LeadStats, error) {
	entries, err := uc.EventLog.Scan(ctx, entity.EventLogFilter{})
	if err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	stats := &LeadStats{LeadCount: len(entries)}
	var last time.Time
	for _, e := range entries {
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	if !last.IsZero() {
		s := last.Format(StatsTimeLayout)
		stats.LastTime = &s
	}
	return stats, nil
}

func (uc *ReportsUseCase) Dashboard(ctx context.Context) (*Dashboard, error) {
	entries, err := uc.EventLog.Scan(ctx, entity.EventLogFilter{})
	if err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	failed, err := uc.Failed.Scan(ctx, entity.FailedLeadFilter{})
	if err != nil {
		return nil, fmt.Errorf("reading failed leads: %w", err)
	}

	d := &Dashboard{
		BySource:          map[string]int{},
		FailedCount:       len(failed),
		FailedByErrorType: map[string]int{},
	}
	for _, e := range entries {
		d.BySource[e.Lead.Get(entity.FieldCampaignSource)]++
	}
	for _, f := range failed {
		d.FailedByErrorType[f.ErrorType]++
		if !f.Sent {
			d.UnsentCount++
		}
	}
	return d, nil
}

// Logs returns the entries matching filter. Campaigns and Sources list every value in the
// log, not only the filtered rows.
func (uc *ReportsUseCase) Logs(ctx context.Context, filter entity.EventLogFilter) (*LogsView, error) {
	all, err := uc.EventLog.Scan(ctx, entity.EventLogFilter{})
	if err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	view := &LogsView{Entries: []entity.EventLogEntry{}}
	campaigns, sources := map[string]bool{}, map[string]bool{}
	for _, e := range all {
		campaigns[e.Lead.Get(entity.FieldCampaignName)] = true
		sources[e.Lead.Get(entity.FieldCampaignSource)] = true
		if filter.Match(e) {
			view.Entries = append(view.Entries, e)
		}
	}
	view.Campaigns = sortedKeys(campaigns)
	view.Sources = sortedKeys(sources)
	return view, nil
}

func (uc *ReportsUseCase) FailedLogs(ctx context.Context, filter entity.FailedLeadFilter) (*FailedLogsView, error) {
	all, err := uc.Failed.Scan(ctx, entity.FailedLeadFilter{})
	if err != nil {
		return nil, fmt.Errorf("reading failed leads: %w", err)
	}
	view := &FailedLogsView{Leads: []entity.FailedLead{}}
	types := map[string]bool{}
	for _, l := range all {
		types[l.ErrorType] = true
		if filter.Match(l) {
			view.Leads = append(view.Leads, l)
		}
	}
	view.ErrorTypes = sortedKeys(types)
	return view, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
