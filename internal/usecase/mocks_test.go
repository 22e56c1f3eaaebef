package usecase

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/infra/storage"
)

type MockTokenProvider struct {
	mock.Mock
}

func (m *MockTokenProvider) Acquire(ctx context.Context) (entity.AccessToken, error) {
	args := m.Called(ctx)
	return args.Get(0).(entity.AccessToken), args.Error(1)
}

func (m *MockTokenProvider) Invalidate() {
	m.Called()
}

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) DeliverLead(ctx context.Context, token entity.AccessToken, lead entity.LeadRecord) (entity.DeliveryOutcome, error) {
	args := m.Called(ctx, token, lead)
	return args.Get(0).(entity.DeliveryOutcome), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyFailure(ctx context.Context, lead entity.FailedLead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

type MockFailedRepository struct {
	mock.Mock
}

func (m *MockFailedRepository) Append(ctx context.Context, lead *entity.FailedLead) error {
	return m.Called(ctx, lead).Error(0)
}

func (m *MockFailedRepository) Scan(ctx context.Context, filter entity.FailedLeadFilter) ([]entity.FailedLead, error) {
	args := m.Called(ctx, filter)
	leads, _ := args.Get(0).([]entity.FailedLead)
	return leads, args.Error(1)
}

func (m *MockFailedRepository) Update(ctx context.Context, id int64, patch entity.FailedLeadPatch) error {
	return m.Called(ctx, id, patch).Error(0)
}

func (m *MockFailedRepository) Remove(ctx context.Context, ids []int64) error {
	return m.Called(ctx, ids).Error(0)
}

var testToken = entity.AccessToken{AccessToken: "tok", InstanceURL: "https://crm.example.com"}

func newStores(t *testing.T) (*storage.EventLog, *storage.FailedLeads) {
	t.Helper()
	dir := t.TempDir()
	return storage.NewEventLog(filepath.Join(dir, "leads.csv")),
		storage.NewFailedLeads(filepath.Join(dir, "failed_leads.csv"))
}

func byFirstname(name string) any {
	return mock.MatchedBy(func(l entity.LeadRecord) bool { return l[entity.FieldFirstname] == name })
}

func validPayload() map[string]any {
	return map[string]any{
		"Firstname": "A",
		"Lastname":  "B",
		"Mobile":    "500",
		"Email":     "a@b.com",
	}
}
