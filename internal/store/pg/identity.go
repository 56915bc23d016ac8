package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"corevault.org/internal/identity"
	"corevault.org/internal/ids"
)

var _ identity.Store = (*Store)(nil)

func (s *Store) CreateOrganisation(ctx context.Context, org identity.Organisation) (identity.Organisation, error) {
	if err := identity.ValidateOrganisation(org); err != nil {
		return identity.Organisation{}, err
	}
	if org.ID == "" {
		org.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into organisations (id, name, mode)
		values ($1, $2, $3)
		returning id, name, mode, created_at, updated_at
	`, org.ID, org.Name, org.Mode)
	var out identity.Organisation
	if err := row.Scan(&out.ID, &out.Name, &out.Mode, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.Organisation{}, identity.ErrConflict
		}
		return identity.Organisation{}, err
	}
	return out, nil
}

func (s *Store) GetOrganisation(ctx context.Context, id string) (identity.Organisation, error) {
	var out identity.Organisation
	err := s.db.QueryRowContext(ctx, `
		select id, name, mode, created_at, updated_at
		from organisations
		where id = $1
	`, id).Scan(&out.ID, &out.Name, &out.Mode, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Organisation{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Organisation{}, err
	}
	return out, nil
}

func (s *Store) ListOrganisations(ctx context.Context) ([]identity.Organisation, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, mode, created_at, updated_at
		from organisations
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.Organisation
	for rows.Next() {
		var org identity.Organisation
		if err := rows.Scan(&org.ID, &org.Name, &org.Mode, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, org)
	}
	return result, rows.Err()
}

// CreateIdentity inserts the account and its profile in one transaction.
// Rolling back on any failure keeps the pairing invariant: no account row
// ever exists without its profile row.
func (s *Store) CreateIdentity(ctx context.Context, acct identity.Account, profile identity.Profile) (identity.Account, identity.Profile, error) {
	if acct.ID == "" {
		acct.ID = ids.New()
	}
	profile.AccountID = acct.ID
	if err := identity.ValidateProfile(profile); err != nil {
		return identity.Account{}, identity.Profile{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return identity.Account{}, identity.Profile{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into accounts (id, username, email, password_hash)
		values ($1, $2, $3, $4)
		returning id, username, email, password_hash, created_at, updated_at
	`, acct.ID, acct.Username, acct.Email, acct.PasswordHash)
	var outAcct identity.Account
	if err := row.Scan(&outAcct.ID, &outAcct.Username, &outAcct.Email, &outAcct.PasswordHash, &outAcct.CreatedAt, &outAcct.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.Account{}, identity.Profile{}, identity.ErrConflict
		}
		return identity.Account{}, identity.Profile{}, err
	}

	row = tx.QueryRowContext(ctx, `
		insert into user_profiles (
			account_id, organisation_id, role, clearance_level,
			department, phone, employee_id, can_approve_jorc, can_approve_valmin
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning account_id, coalesce(organisation_id, ''), role, clearance_level,
			coalesce(department, ''), coalesce(phone, ''), coalesce(employee_id, ''),
			can_approve_jorc, can_approve_valmin, created_at, updated_at
	`, profile.AccountID, nullIfEmpty(profile.OrganisationID), profile.Role, profile.Clearance,
		nullIfEmpty(profile.Department), nullIfEmpty(profile.Phone), nullIfEmpty(profile.EmployeeID),
		profile.CanApproveJORC, profile.CanApproveVALMIN)
	outProf, err := scanProfile(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return identity.Account{}, identity.Profile{}, identity.ErrConflict
			case pgErrForeignKeyViolation:
				return identity.Account{}, identity.Profile{}, fmt.Errorf("%w: unknown organisation %q", identity.ErrInvalidInput, profile.OrganisationID)
			}
		}
		return identity.Account{}, identity.Profile{}, err
	}

	if err := tx.Commit(); err != nil {
		return identity.Account{}, identity.Profile{}, err
	}
	return outAcct, outProf, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (identity.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		select id, username, email, password_hash, created_at, updated_at
		from accounts
		where id = $1
	`, id))
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (identity.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		select id, username, email, password_hash, created_at, updated_at
		from accounts
		where username = $1
	`, username))
}

func (s *Store) scanAccount(row *sql.Row) (identity.Account, error) {
	var a identity.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Account{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Account{}, err
	}
	return a, nil
}

const profileColumns = `account_id, coalesce(organisation_id, ''), role, clearance_level,
	coalesce(department, ''), coalesce(phone, ''), coalesce(employee_id, ''),
	can_approve_jorc, can_approve_valmin, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (identity.Profile, error) {
	var p identity.Profile
	err := row.Scan(&p.AccountID, &p.OrganisationID, &p.Role, &p.Clearance,
		&p.Department, &p.Phone, &p.EmployeeID,
		&p.CanApproveJORC, &p.CanApproveVALMIN, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetProfile(ctx context.Context, accountID string) (identity.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		select `+profileColumns+`
		from user_profiles
		where account_id = $1
	`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing profile from a missing account: the former is
		// a data-integrity fault the caller reports loudly.
		var exists int
		probe := s.db.QueryRowContext(ctx, `select 1 from accounts where id = $1`, accountID).Scan(&exists)
		if errors.Is(probe, sql.ErrNoRows) {
			return identity.Profile{}, identity.ErrNotFound
		}
		if probe != nil {
			return identity.Profile{}, probe
		}
		return identity.Profile{}, identity.ErrProfileMissing
	}
	if err != nil {
		return identity.Profile{}, err
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, accountID string, upd identity.ProfileUpdate) (identity.Profile, error) {
	set := []string{"updated_at = now()"}
	args := []any{accountID}
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if upd.OrganisationID != nil {
		set = append(set, "organisation_id = "+next(nullIfEmpty(*upd.OrganisationID)))
	}
	if upd.Role != nil {
		set = append(set, "role = "+next(*upd.Role))
	}
	if upd.Clearance != nil {
		set = append(set, "clearance_level = "+next(*upd.Clearance))
	}
	if upd.Department != nil {
		set = append(set, "department = "+next(nullIfEmpty(*upd.Department)))
	}
	if upd.Phone != nil {
		set = append(set, "phone = "+next(nullIfEmpty(*upd.Phone)))
	}
	if upd.EmployeeID != nil {
		set = append(set, "employee_id = "+next(nullIfEmpty(*upd.EmployeeID)))
	}
	if upd.CanApproveJORC != nil {
		set = append(set, "can_approve_jorc = "+next(*upd.CanApproveJORC))
	}
	if upd.CanApproveVALMIN != nil {
		set = append(set, "can_approve_valmin = "+next(*upd.CanApproveVALMIN))
	}

	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		update user_profiles
		set `+strings.Join(set, ", ")+`
		where account_id = $1
		returning `+profileColumns, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Profile{}, identity.ErrNotFound
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return identity.Profile{}, identity.ErrConflict
			case pgErrForeignKeyViolation:
				return identity.Profile{}, fmt.Errorf("%w: unknown organisation", identity.ErrInvalidInput)
			}
		}
		return identity.Profile{}, err
	}
	return p, nil
}

func (s *Store) ListProfilesByOrganisation(ctx context.Context, organisationID string) ([]identity.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+profileColumns+`
		from user_profiles
		where organisation_id = $1
		order by created_at
	`, organisationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
