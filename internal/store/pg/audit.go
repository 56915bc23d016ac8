package pg

import (
	"context"
	"strconv"
	"strings"

	"corevault.org/internal/audit"
	"corevault.org/internal/ids"
)

var (
	_ audit.Recorder   = (*Store)(nil)
	_ audit.ViewLedger = (*Store)(nil)
)

const auditColumns = `id, coalesce(actor_id, ''), action, target_kind, target_id,
	coalesce(description, ''), coalesce(ip_address, ''), coalesce(user_agent, ''), created_at`

func scanAuditEntry(row rowScanner) (audit.Entry, error) {
	var e audit.Entry
	err := row.Scan(&e.ID, &e.ActorID, &e.Action, &e.Target.Kind, &e.Target.ID,
		&e.Description, &e.IP, &e.UserAgent, &e.CreatedAt)
	return e, err
}

// Append writes one audit row. There is no update or delete path anywhere in
// this package; the trail only grows.
func (s *Store) Append(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	if err := audit.ValidateEntry(e); err != nil {
		return audit.Entry{}, err
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into audit_logs (id, actor_id, action, target_kind, target_id, description, ip_address, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+auditColumns,
		e.ID, nullIfEmpty(e.ActorID), e.Action, e.Target.Kind, e.Target.ID,
		nullIfEmpty(e.Description), nullIfEmpty(e.IP), nullIfEmpty(e.UserAgent))
	return scanAuditEntry(row)
}

func (s *Store) Query(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if !q.Target.IsZero() {
		where = append(where, "target_kind = "+next(q.Target.Kind))
		where = append(where, "target_id = "+next(q.Target.ID))
	}
	if q.ActorID != "" {
		where = append(where, "actor_id = "+next(q.ActorID))
	}
	if q.Action != "" {
		where = append(where, "action = "+next(q.Action))
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= "+next(q.Since))
	}
	if !q.Until.IsZero() {
		where = append(where, "created_at <= "+next(q.Until))
	}

	query := `select ` + auditColumns + ` from audit_logs`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " order by created_at desc, id desc limit " + next(limit)
	if q.Offset > 0 {
		query += " offset " + next(q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Entry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) RecordView(ctx context.Context, v audit.ViewEntry) (audit.ViewEntry, error) {
	if v.ID == "" {
		v.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into document_views (id, viewer_id, document_id, ip_address)
		values ($1, $2, $3, $4)
		returning id, viewer_id, document_id, coalesce(ip_address, ''), viewed_at
	`, v.ID, v.ViewerID, v.DocumentID, nullIfEmpty(v.IP))
	var out audit.ViewEntry
	if err := row.Scan(&out.ID, &out.ViewerID, &out.DocumentID, &out.IP, &out.ViewedAt); err != nil {
		return audit.ViewEntry{}, err
	}
	return out, nil
}

func (s *Store) QueryViews(ctx context.Context, documentID string) ([]audit.ViewEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, viewer_id, document_id, coalesce(ip_address, ''), viewed_at
		from document_views
		where document_id = $1
		order by viewed_at desc, id desc
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.ViewEntry
	for rows.Next() {
		var v audit.ViewEntry
		if err := rows.Scan(&v.ID, &v.ViewerID, &v.DocumentID, &v.IP, &v.ViewedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (s *Store) HasViewed(ctx context.Context, viewerID, documentID string) (bool, error) {
	var seen bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from document_views where viewer_id = $1 and document_id = $2)
	`, viewerID, documentID).Scan(&seen)
	if err != nil {
		return false, err
	}
	return seen, nil
}
