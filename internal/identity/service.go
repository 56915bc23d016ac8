package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Service provides validated identity operations on top of a Store.
type Service struct {
	store Store
}

// NewService constructs the identity service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	return &Service{store: store}, nil
}

func (s *Service) CreateOrganisation(ctx context.Context, name string, mode OrganisationMode) (Organisation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organisation{}, fmt.Errorf("%w: organisation name is required", ErrInvalidInput)
	}
	if mode == "" {
		mode = ModeExploration
	}
	org := Organisation{Name: name, Mode: mode}
	if err := ValidateOrganisation(org); err != nil {
		return Organisation{}, err
	}
	return s.store.CreateOrganisation(ctx, org)
}

func (s *Service) GetOrganisation(ctx context.Context, id string) (Organisation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Organisation{}, fmt.Errorf("%w: organisation_id is required", ErrInvalidInput)
	}
	return s.store.GetOrganisation(ctx, id)
}

func (s *Service) ListOrganisations(ctx context.Context) ([]Organisation, error) {
	return s.store.ListOrganisations(ctx)
}

// NewIdentity describes a combined account + profile creation request.
type NewIdentity struct {
	Username         string
	Email            string
	Password         string
	OrganisationID   string
	Role             Role
	Clearance        Clearance
	Department       string
	EmployeeID       string
	CanApproveJORC   bool
	CanApproveVALMIN bool
}

// CreateIdentity creates the account and its profile as one unit. This is the
// single orchestration point for profile creation: profiles are never created
// as a side effect of some other write.
func (s *Service) CreateIdentity(ctx context.Context, req NewIdentity) (Account, Profile, error) {
	username := strings.TrimSpace(strings.ToLower(req.Username))
	if username == "" {
		return Account{}, Profile{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email != "" && !strings.Contains(email, "@") {
		return Account{}, Profile{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	password := strings.TrimSpace(req.Password)
	if password == "" {
		return Account{}, Profile{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return Account{}, Profile{}, err
	}

	profile := Profile{
		OrganisationID:   strings.TrimSpace(req.OrganisationID),
		Role:             req.Role,
		Clearance:        req.Clearance,
		Department:       strings.TrimSpace(req.Department),
		EmployeeID:       strings.TrimSpace(req.EmployeeID),
		CanApproveJORC:   req.CanApproveJORC,
		CanApproveVALMIN: req.CanApproveVALMIN,
	}
	if profile.Role == "" {
		profile.Role = RoleViewer
	}
	if profile.Clearance == "" {
		profile.Clearance = ClearanceInternal
	}
	// AccountID is filled by the store once the account row exists; validate
	// the enum fields up front.
	check := profile
	check.AccountID = "pending"
	if err := ValidateProfile(check); err != nil {
		return Account{}, Profile{}, err
	}

	acct := Account{Username: username, Email: email, PasswordHash: hash}
	return s.store.CreateIdentity(ctx, acct, profile)
}

func (s *Service) GetAccount(ctx context.Context, id string) (Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Account{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	return s.store.GetAccount(ctx, id)
}

func (s *Service) GetProfile(ctx context.Context, accountID string) (Profile, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Profile{}, fmt.Errorf("%w: account_id is required", ErrInvalidInput)
	}
	return s.store.GetProfile(ctx, accountID)
}

func (s *Service) ListProfilesByOrganisation(ctx context.Context, organisationID string) ([]Profile, error) {
	organisationID = strings.TrimSpace(organisationID)
	if organisationID == "" {
		return nil, fmt.Errorf("%w: organisation_id is required", ErrInvalidInput)
	}
	return s.store.ListProfilesByOrganisation(ctx, organisationID)
}

// UpdateProfile applies administrative changes after validating enum fields.
func (s *Service) UpdateProfile(ctx context.Context, accountID string, upd ProfileUpdate) (Profile, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Profile{}, fmt.Errorf("%w: account_id is required", ErrInvalidInput)
	}
	if upd.Role != nil && !upd.Role.Valid() {
		return Profile{}, fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, *upd.Role)
	}
	if upd.Clearance != nil && !upd.Clearance.Valid() {
		return Profile{}, fmt.Errorf("%w: unsupported clearance level %q", ErrInvalidInput, *upd.Clearance)
	}
	return s.store.UpdateProfile(ctx, accountID, upd)
}

// Authenticate verifies credentials and returns the account on success.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Account, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return Account{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	acct, err := s.store.GetAccountByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		// Uniform failure; do not reveal whether the username exists.
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}
	ok, err := verifyPassword(password, acct.PasswordHash)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// ErrInvalidCredentials is returned for a username/password mismatch.
var ErrInvalidCredentials = errors.New("invalid credentials")

func hashPassword(password string) (string, error) {
	const (
		memory      = 64 * 1024
		iterations  = 2
		parallelism = 1
		keyLength   = 32
		saltLength  = 16
	)

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("%w: malformed password hash", ErrInvalidInput)
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("parse hash parameters: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, err
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
