package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"corevault.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. It mirrors
// the storage constraints the pg store gets from the schema: unique
// usernames, unique non-empty employee ids, one profile per account.
type InMemory struct {
	mu       sync.RWMutex
	orgs     map[string]Organisation
	accounts map[string]Account
	byName   map[string]string // username -> account id
	profiles map[string]Profile
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty identity store.
func NewInMemory() *InMemory {
	return &InMemory{
		orgs:     make(map[string]Organisation),
		accounts: make(map[string]Account),
		byName:   make(map[string]string),
		profiles: make(map[string]Profile),
	}
}

func (s *InMemory) CreateOrganisation(ctx context.Context, org Organisation) (Organisation, error) {
	if err := ValidateOrganisation(org); err != nil {
		return Organisation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.ID == "" {
		org.ID = ids.New()
	}
	now := time.Now().UTC()
	org.CreatedAt = now
	org.UpdatedAt = now
	s.orgs[org.ID] = org
	return org, nil
}

func (s *InMemory) GetOrganisation(ctx context.Context, id string) (Organisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return Organisation{}, ErrNotFound
	}
	return org, nil
}

func (s *InMemory) ListOrganisations(ctx context.Context) ([]Organisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Organisation, 0, len(s.orgs))
	for _, org := range s.orgs {
		out = append(out, org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) CreateIdentity(ctx context.Context, acct Account, profile Profile) (Account, Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[acct.Username]; taken {
		return Account{}, Profile{}, fmt.Errorf("%w: username %s", ErrConflict, acct.Username)
	}
	if profile.OrganisationID != "" {
		if _, ok := s.orgs[profile.OrganisationID]; !ok {
			return Account{}, Profile{}, fmt.Errorf("%w: organisation %s", ErrNotFound, profile.OrganisationID)
		}
	}
	if profile.EmployeeID != "" {
		for _, p := range s.profiles {
			if p.EmployeeID == profile.EmployeeID {
				return Account{}, Profile{}, fmt.Errorf("%w: employee_id %s", ErrConflict, profile.EmployeeID)
			}
		}
	}

	now := time.Now().UTC()
	if acct.ID == "" {
		acct.ID = ids.New()
	}
	acct.CreatedAt = now
	acct.UpdatedAt = now

	profile.AccountID = acct.ID
	profile.CreatedAt = now
	profile.UpdatedAt = now
	if err := ValidateProfile(profile); err != nil {
		return Account{}, Profile{}, err
	}

	s.accounts[acct.ID] = acct
	s.byName[acct.Username] = acct.ID
	s.profiles[acct.ID] = profile
	return acct, profile, nil
}

func (s *InMemory) GetAccount(ctx context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (s *InMemory) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return Account{}, ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *InMemory) GetProfile(ctx context.Context, accountID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return Profile{}, ErrNotFound
	}
	p, ok := s.profiles[accountID]
	if !ok {
		return Profile{}, ErrProfileMissing
	}
	return p, nil
}

func (s *InMemory) UpdateProfile(ctx context.Context, accountID string, upd ProfileUpdate) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[accountID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	if upd.OrganisationID != nil {
		if *upd.OrganisationID != "" {
			if _, ok := s.orgs[*upd.OrganisationID]; !ok {
				return Profile{}, fmt.Errorf("%w: organisation %s", ErrNotFound, *upd.OrganisationID)
			}
		}
		p.OrganisationID = *upd.OrganisationID
	}
	if upd.Role != nil {
		p.Role = *upd.Role
	}
	if upd.Clearance != nil {
		p.Clearance = *upd.Clearance
	}
	if upd.Department != nil {
		p.Department = *upd.Department
	}
	if upd.Phone != nil {
		p.Phone = *upd.Phone
	}
	if upd.EmployeeID != nil {
		p.EmployeeID = *upd.EmployeeID
	}
	if upd.CanApproveJORC != nil {
		p.CanApproveJORC = *upd.CanApproveJORC
	}
	if upd.CanApproveVALMIN != nil {
		p.CanApproveVALMIN = *upd.CanApproveVALMIN
	}
	if err := ValidateProfile(p); err != nil {
		return Profile{}, err
	}
	p.UpdatedAt = time.Now().UTC()
	s.profiles[accountID] = p
	return p, nil
}

func (s *InMemory) ListProfilesByOrganisation(ctx context.Context, organisationID string) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Profile
	for _, p := range s.profiles {
		if p.OrganisationID == organisationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}
