package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/lead-relay/internal/entity"
)

var failedColumns = []string{
	"id", "created_at", "request_id", "channel", "error_type", "error", "status", "response",
	"fields", "sent", "last_status", "last_sent_at",
}

func TestFailedLeadAppendReturnsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFailedLeadRepository(db)
	lead := &entity.FailedLead{
		Timestamp: time.Now(),
		RequestID: "req-1",
		Channel:   entity.ChannelWeb,
		ErrorType: entity.ErrorTypeDelivery,
		Status:    400,
		Lead:      entity.LeadRecord{entity.FieldFirstname: "A"},
	}

	mock.ExpectQuery("INSERT INTO failed_leads").
		WithArgs(sqlmock.AnyArg(), "req-1", "web", entity.ErrorTypeDelivery, "", sqlmock.AnyArg(), "",
			[]byte(`{"Firstname":"A"}`), false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	require.NoError(t, repo.Append(context.Background(), lead))
	assert.Equal(t, int64(7), lead.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailedLeadScanUnsentWithCampaign(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM failed_leads WHERE fields->>'Campaign_Name' = \$1 AND NOT sent ORDER BY id`).
		WithArgs("spring").
		WillReturnRows(sqlmock.NewRows(failedColumns).
			AddRow(3, now, "req-3", "tiktok", entity.ErrorTypeAuth, "boom", nil, "",
				[]byte(`{"Firstname":"A","Campaign_Name":"spring"}`), false, nil, nil).
			AddRow(5, now, "req-5", "web", entity.ErrorTypeDelivery, "", 400, "bad",
				[]byte(`{"Firstname":"B","Campaign_Name":"spring"}`), false, 400, now))

	leads, err := NewFailedLeadRepository(db).Scan(context.Background(), entity.FailedLeadFilter{
		Campaign:  "spring",
		Selection: entity.SelectUnsent,
	})

	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, int64(3), leads[0].ID)
	assert.False(t, leads[0].HasLastStatus())
	assert.Nil(t, leads[0].LastSentAt)
	assert.Equal(t, entity.ChannelTikTok, leads[0].Channel)
	assert.Equal(t, 400, leads[1].LastStatus)
	assert.NotNil(t, leads[1].LastSentAt)
	assert.Equal(t, "B", leads[1].Lead[entity.FieldFirstname])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailedLeadScanFailedSelection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WHERE id = ANY\(\$1\) AND last_status IS NOT NULL`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(failedColumns))

	leads, err := NewFailedLeadRepository(db).Scan(context.Background(), entity.FailedLeadFilter{
		IDs:       []int64{1, 2},
		Selection: entity.SelectFailed,
	})

	require.NoError(t, err)
	assert.Empty(t, leads)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailedLeadUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sent := true
	status := 200
	at := time.Now()

	mock.ExpectExec(`UPDATE failed_leads SET sent = \$1, last_status = \$2, last_sent_at = \$3 WHERE id = \$4`).
		WithArgs(true, sqlmock.AnyArg(), at, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewFailedLeadRepository(db).Update(context.Background(), 9, entity.FailedLeadPatch{
		Sent: &sent, LastStatus: &status, LastSentAt: &at,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailedLeadUpdateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sent := true
	mock.ExpectExec("UPDATE failed_leads").WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewFailedLeadRepository(db).Update(context.Background(), 9, entity.FailedLeadPatch{Sent: &sent})

	var notFound *entity.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int64(9), notFound.ID)
}

func TestFailedLeadRemove(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM failed_leads WHERE id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewFailedLeadRepository(db)
	require.NoError(t, repo.Remove(context.Background(), []int64{1, 2}))
	require.NoError(t, repo.Remove(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailedLeadDatabaseErrorIsStoreIOError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	_, err = NewFailedLeadRepository(db).Scan(context.Background(), entity.FailedLeadFilter{})

	var ioErr *entity.StoreIOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestEventLogAppendAndScan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewEventLogRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO lead_events").
		WithArgs(now, "req-1", "web", 200, "", []byte(`{"Firstname":"A"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Append(context.Background(), entity.EventLogEntry{
		Timestamp: now,
		RequestID: "req-1",
		Channel:   entity.ChannelWeb,
		Status:    200,
		Lead:      entity.LeadRecord{entity.FieldFirstname: "A"},
	}))

	mock.ExpectQuery(`SELECT (.+) FROM lead_events WHERE fields->>'Campaign_Source' = \$1 AND created_at >= \$2 ORDER BY id`).
		WithArgs("TikTok", now).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "request_id", "channel", "status", "error", "fields"}).
			AddRow(now, "req-1", "web", 200, "", []byte(`{"Firstname":"A","Campaign_Source":"TikTok"}`)))

	entries, err := repo.Scan(context.Background(), entity.EventLogFilter{Source: "TikTok", From: &now})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "TikTok", entries[0].Lead[entity.FieldCampaignSource])
	assert.NoError(t, mock.ExpectationsWereMet())
}
