package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/xavierca1/lead-relay/internal/entity"
)

// FailedLeadRepository is the Postgres flavour of the failed-lead store. Row ids come from
// a BIGSERIAL and are never reused.
type FailedLeadRepository struct {
	DB *sql.DB
}

func NewFailedLeadRepository(db *sql.DB) *FailedLeadRepository {
	return &FailedLeadRepository{DB: db}
}

func (r *FailedLeadRepository) Append(ctx context.Context, l *entity.FailedLead) error {
	fields, err := json.Marshal(l.Lead)
	if err != nil {
		return &entity.StoreIOError{Op: "append", Path: storeName, Err: err}
	}

	query := `
		INSERT INTO failed_leads (
			created_at, request_id, channel, error_type, error, status, response,
			fields, sent, last_status, last_sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err = r.DB.QueryRowContext(ctx, query,
		l.Timestamp,
		l.RequestID,
		string(l.Channel),
		l.ErrorType,
		l.Error,
		nullInt(l.Status),
		l.Response,
		fields,
		l.Sent,
		nullInt(l.LastStatus),
		nullTime(l),
	).Scan(&l.ID)
	if err != nil {
		return &entity.StoreIOError{Op: "append", Path: storeName, Err: err}
	}
	return nil
}

func (r *FailedLeadRepository) Scan(ctx context.Context, f entity.FailedLeadFilter) ([]entity.FailedLead, error) {
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
	if f.ErrorType != "" {
		args = append(args, f.ErrorType)
		where = append(where, fmt.Sprintf("error_type = $%d", len(args)))
	}
	if len(f.IDs) > 0 {
		args = append(args, pq.Array(f.IDs))
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	switch f.Selection {
	case entity.SelectUnsent:
		where = append(where, "NOT sent")
	case entity.SelectFailed:
		where = append(where, "last_status IS NOT NULL AND (last_status < 200 OR last_status >= 300)")
	}

	query := `
		SELECT id, created_at, request_id, channel, error_type, error, status, response,
		       fields, sent, last_status, last_sent_at
		FROM failed_leads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &entity.StoreIOError{Op: "scan", Path: storeName, Err: err}
	}
	defer rows.Close()

	var leads []entity.FailedLead
	for rows.Next() {
		var (
			l          entity.FailedLead
			channel    string
			status     sql.NullInt64
			lastStatus sql.NullInt64
			lastSentAt sql.NullTime
			fields     []byte
		)
		err := rows.Scan(&l.ID, &l.Timestamp, &l.RequestID, &channel, &l.ErrorType, &l.Error,
			&status, &l.Response, &fields, &l.Sent, &lastStatus, &lastSentAt)
		if err != nil {
			return nil, &entity.StoreIOError{Op: "scan", Path: storeName, Err: err}
		}
		if err := json.Unmarshal(fields, &l.Lead); err != nil {
			return nil, &entity.StoreIOError{Op: "scan", Path: storeName, Err: err}
		}
		l.Channel = entity.Channel(channel)
		l.Status = int(status.Int64)
		l.LastStatus = int(lastStatus.Int64)
		if lastSentAt.Valid {
			t := lastSentAt.Time
			l.LastSentAt = &t
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, &entity.StoreIOError{Op: "scan", Path: storeName, Err: err}
	}
	return leads, nil
}

func (r *FailedLeadRepository) Update(ctx context.Context, id int64, p entity.FailedLeadPatch) error {
	var (
		sets []string
		args []any
	)
	if p.Sent != nil {
		args = append(args, *p.Sent)
		sets = append(sets, fmt.Sprintf("sent = $%d", len(args)))
	}
	if p.LastStatus != nil {
		args = append(args, nullInt(*p.LastStatus))
		sets = append(sets, fmt.Sprintf("last_status = $%d", len(args)))
	}
	if p.LastSentAt != nil {
		args = append(args, *p.LastSentAt)
		sets = append(sets, fmt.Sprintf("last_sent_at = $%d", len(args)))
	}
	if len(sets) == 0 {
		sets = append(sets, "id = id")
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE failed_leads SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return &entity.StoreIOError{Op: "update", Path: storeName, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &entity.StoreIOError{Op: "update", Path: storeName, Err: err}
	}
	if n == 0 {
		return &entity.NotFoundError{ID: id}
	}
	return nil
}

func (r *FailedLeadRepository) Remove(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM failed_leads WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return &entity.StoreIOError{Op: "remove", Path: storeName, Err: err}
	}
	return nil
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func nullTime(l *entity.FailedLead) sql.NullTime {
	if l.LastSentAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *l.LastSentAt, Valid: true}
}
