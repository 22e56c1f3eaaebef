package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xavierca1/lead-relay/internal/entity"
)

const storeName = "postgres"

type EventLogRepository struct {
	DB *sql.DB
}

func NewEventLogRepository(db *sql.DB) *EventLogRepository {
	return &EventLogRepository{DB: db}
}

func (r *EventLogRepository) Append(ctx context.Context, e entity.EventLogEntry) error {
	fields, err := json.Marshal(e.Lead)
	if err != nil {
		return &entity.StoreIOError{Op: "append", Path: storeName, Err: err}
	}

	query := `
		INSERT INTO lead_events (created_at, request_id, channel, status, error, fields)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.DB.ExecContext(ctx, query, e.Timestamp, e.RequestID, string(e.Channel), e.Status, e.Error, fields); err != nil {
		return &entity.StoreIOError{Op: "append", Path: storeName, Err: err}
	}
	return nil
}

func (r *EventLogRepository) Scan(ctx context.Context, f entity.EventLogFilter) ([]entity.EventLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Campaign != "" {
		args = append(args, f.Campaign)
		where = append(where, fmt.Sprintf("fields->>'%s' = $%d", entity.FieldCampaignName, len(args)))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		where = append(where, fmt.Sprintf("fields->>'%s' = $%d", entity.FieldCampaignSource, len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT created_at, request_id, channel, status, error, fields FROM lead_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &entity.StoreIOError{Op: "scan", Path: storeName, Err: err}
	}
	defer rows.Close()

	var entries []entity.EventLogEntry
	for rows.Next() {
		var (
			e       entity.EventLogEntry
			channel string
			fields  []byte
		)
		if err := rows.Scan(&e.Timestamp, &e.RequestID, &channel, &e.Status, &e.Error, &fields); err != nil {
			return nil, &entity.StoreIOError{Op: "scan", Path: storeName, Err: err}
		}
		e.Channel = entity.Channel(channel)
		if err := json.Unmarshal(fields, &e.Lead); err != nil {
			return nil, &entity.StoreIOError{Op: "scan", Path: storeName, Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &entity.StoreIOError{Op: "scan", Path: storeName, Err: err}
	}
	return entries, nil
}
