package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"corevault.org/internal/document"
	"corevault.org/internal/ids"
)

var _ document.Store = (*Store)(nil)

const documentColumns = `id, title, coalesce(organisation_id, ''), coalesce(process_id, ''),
	coalesce(doc_type, ''), confidentiality, coalesce(checksum, ''), coalesce(created_by, ''),
	created_at, updated_at`

func scanDocument(row rowScanner) (document.Document, error) {
	var d document.Document
	err := row.Scan(&d.ID, &d.Title, &d.OrganisationID, &d.ProcessID,
		&d.DocType, &d.Confidentiality, &d.Checksum, &d.CreatedBy,
		&d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// Create inserts the metadata row. The partial unique index on checksum is
// the dedup arbiter: a losing concurrent insert surfaces as SQLSTATE 23505
// and is translated to DuplicateContentError here.
func (s *Store) Create(ctx context.Context, doc document.Document) (document.Document, error) {
	if doc.ID == "" {
		doc.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into documents (
			id, title, organisation_id, process_id, doc_type,
			confidentiality, checksum, created_by
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+documentColumns,
		doc.ID, doc.Title, nullIfEmpty(doc.OrganisationID), nullIfEmpty(doc.ProcessID),
		nullIfEmpty(doc.DocType), doc.Confidentiality, nullIfEmpty(doc.Checksum), nullIfEmpty(doc.CreatedBy))
	out, err := scanDocument(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return document.Document{}, &document.DuplicateContentError{Digest: doc.Checksum}
			case pgErrForeignKeyViolation:
				return document.Document{}, fmt.Errorf("%w: unknown organisation %q", document.ErrInvalidInput, doc.OrganisationID)
			}
		}
		return document.Document{}, err
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (document.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, `
		select `+documentColumns+`
		from documents
		where id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, document.ErrNotFound
	}
	if err != nil {
		return document.Document{}, err
	}
	return d, nil
}

func (s *Store) ListByOrganisation(ctx context.Context, organisationID string) ([]document.Document, error) {
	return s.listDocuments(ctx, `
		select `+documentColumns+`
		from documents
		where organisation_id = $1
		order by created_at desc
	`, organisationID)
}

func (s *Store) ListByProcess(ctx context.Context, processID string) ([]document.Document, error) {
	return s.listDocuments(ctx, `
		select `+documentColumns+`
		from documents
		where process_id = $1
		order by created_at desc
	`, processID)
}

func (s *Store) listDocuments(ctx context.Context, query string, args ...any) ([]document.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []document.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) ChecksumExists(ctx context.Context, digest string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from documents where checksum = $1)
	`, digest).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from documents where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return document.ErrNotFound
	}
	return nil
}
