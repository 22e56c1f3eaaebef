package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/lead-relay/internal/entity"
)

// RetryInput selects the failed leads of one retry batch.
type RetryInput struct {
	Selection        entity.Selection `json:"selection"`
	IDs              []int64          `json:"ids,omitempty"`
	MarkSent         bool             `json:"mark_sent"`
	RemoveSuccessful bool             `json:"remove_successful"`
	Campaign         string           `json:"campaign,omitempty"`
	Source           string           `json:"source,omitempty"`
	ErrorType        string           `json:"error_type,omitempty"`
}

// UnmarshalJSON defaults mark_sent to true when the body leaves it out.
func (in *RetryInput) UnmarshalJSON(data []byte) error {
	type plain RetryInput
	p := plain{MarkSent: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*in = RetryInput(p)
	return nil
}

func (in RetryInput) Validate() error {
	return fromValidation(validation.ValidateStruct(&in,
		validation.Field(&in.Selection, validation.In(
			entity.SelectAll, entity.SelectUnsent, entity.SelectFailed, entity.SelectIDs,
		)),
		validation.Field(&in.IDs,
			validation.When(in.Selection == entity.SelectIDs, validation.Required),
			validation.Each(validation.Min(int64(1))),
		),
		validation.Field(&in.ErrorType, validation.In(
			entity.ErrorTypeAuth, entity.ErrorTypeTransport, entity.ErrorTypeDelivery,
		)),
	))
}

const resultNotFound = "not_found"

type RetryResult struct {
	ID        int64  `json:"id"`
	Status    int    `json:"status,omitempty"`
	Succeeded bool   `json:"succeeded"`
	ErrorType string `json:"error_type,omitempty"`
	Error     string `json:"error,omitempty"`
	Removed   bool   `json:"removed"`
}

type RetryOutput struct {
	Total        int           `json:"total"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	Results      []RetryResult `json:"results"`
}

type RetryFailedLeadsUseCase struct {
	Tokens   TokenProvider
	CRM      LeadDeliverer
	EventLog entity.EventLogRepository
	Failed   entity.FailedLeadRepository
	Now      func() time.Time
}

func NewRetryFailedLeadsUseCase(
	tokens TokenProvider,
	crm LeadDeliverer,
	eventLog entity.EventLogRepository,
	failed entity.FailedLeadRepository,
) *RetryFailedLeadsUseCase {
	return &RetryFailedLeadsUseCase{
		Tokens:   tokens,
		CRM:      crm,
		EventLog: eventLog,
		Failed:   failed,
		Now:      time.Now,
	}
}

// Execute resends a snapshot of the failed store. Records are processed one by one and a
// record failure never stops the batch. Status changes are committed after every delivery
// was attempted, followed by a single removal of the successes when requested. Only store
// errors abort the batch.
func (uc *RetryFailedLeadsUseCase) Execute(ctx context.Context, input RetryInput) (*RetryOutput, error) {
	if input.Selection == "" {
		input.Selection = entity.SelectAll
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	// 1. Snapshot
	filter := entity.FailedLeadFilter{
		Campaign:  input.Campaign,
		Source:    input.Source,
		ErrorType: input.ErrorType,
		Selection: input.Selection,
	}
	if input.Selection == entity.SelectIDs {
		filter.IDs = input.IDs
	}
	snapshot, err := uc.Failed.Scan(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("loading failed leads: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"selection": input.Selection,
		"records":   len(snapshot),
	}).Info("retry batch started")

	// 2. Deliver every record, collecting the changes
	session := newTokenSession(uc.Tokens)
	results := make([]RetryResult, 0, len(snapshot))
	patches := make([]entity.FailedLeadPatch, 0, len(snapshot))
	for _, lead := range snapshot {
		result := deliver(ctx, session, uc.CRM, lead.Lead)
		now := uc.Now().UTC()
		status := result.outcome.StatusCode
		patch := entity.FailedLeadPatch{LastStatus: &status, LastSentAt: &now}
		res := RetryResult{ID: lead.ID, Status: status}

		if result.succeeded() {
			entry := entity.EventLogEntry{
				Timestamp: now,
				RequestID: lead.RequestID,
				Channel:   lead.Channel,
				Status:    status,
				Lead:      lead.Lead,
			}
			if err := uc.EventLog.Append(ctx, entry); err != nil {
				return nil, fmt.Errorf("recording retried lead %d: %w", lead.ID, err)
			}
			if input.MarkSent {
				sent := true
				patch.Sent = &sent
			}
			res.Succeeded = true
		} else {
			res.ErrorType = result.errorType
			res.Error = result.err.Error()
			logrus.WithFields(logrus.Fields{
				"failed_lead_id": lead.ID,
				"error_type":     result.errorType,
				"status":         status,
			}).Warn("retry delivery failed")
		}
		results = append(results, res)
		patches = append(patches, patch)
	}

	// 3. Commit status fields
	var remove []int64
	for i := range results {
		err := uc.Failed.Update(ctx, results[i].ID, patches[i])
		var notFound *entity.NotFoundError
		switch {
		case errors.As(err, &notFound):
			// removed by someone else while the batch ran
			results[i].Error = notFound.Error()
			continue
		case err != nil:
			return nil, fmt.Errorf("updating failed lead %d: %w", results[i].ID, err)
		}
		if results[i].Succeeded && input.RemoveSuccessful {
			remove = append(remove, results[i].ID)
		}
	}

	// 4. Drop the successes in one pass
	if len(remove) > 0 {
		if err := uc.Failed.Remove(ctx, remove); err != nil {
			return nil, fmt.Errorf("removing retried leads: %w", err)
		}
		removed := make(map[int64]bool, len(remove))
		for _, id := range remove {
			removed[id] = true
		}
		for i := range results {
			results[i].Removed = removed[results[i].ID]
		}
	}

	if input.Selection == entity.SelectIDs {
		results = append(results, missingIDs(input.IDs, snapshot)...)
	}

	out := &RetryOutput{Total: len(results), Results: results}
	for _, r := range results {
		if r.Succeeded {
			out.SuccessCount++
		} else {
			out.FailureCount++
		}
	}
	logrus.WithFields(logrus.Fields{
		"success": out.SuccessCount,
		"failure": out.FailureCount,
		"removed": len(remove),
	}).Info("retry batch finished")
	return out, nil
}

// missingIDs reports requested ids that were not in the snapshot. Ids excluded by the
// other filters count as missing too.
func missingIDs(ids []int64, snapshot []entity.FailedLead) []RetryResult {
	seen := make(map[int64]bool, len(snapshot))
	for _, l := range snapshot {
		seen[l.ID] = true
	}
	var out []RetryResult
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, RetryResult{ID: id, ErrorType: resultNotFound, Error: (&entity.NotFoundError{ID: id}).Error()})
	}
	return out
}
