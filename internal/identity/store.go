package identity

import "context"

// Store describes persistence operations required by the identity subsystem.
type Store interface {
	CreateOrganisation(ctx context.Context, org Organisation) (Organisation, error)
	GetOrganisation(ctx context.Context, id string) (Organisation, error)
	ListOrganisations(ctx context.Context) ([]Organisation, error)

	// CreateIdentity persists the account and its profile in one transaction.
	// There is no path that creates an account without a profile.
	CreateIdentity(ctx context.Context, acct Account, profile Profile) (Account, Profile, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountByUsername(ctx context.Context, username string) (Account, error)

	GetProfile(ctx context.Context, accountID string) (Profile, error)
	UpdateProfile(ctx context.Context, accountID string, upd ProfileUpdate) (Profile, error)
	ListProfilesByOrganisation(ctx context.Context, organisationID string) ([]Profile, error)
}

// ProfileUpdate carries optional administrative mutations; nil fields are
// left untouched.
type ProfileUpdate struct {
	OrganisationID   *string
	Role             *Role
	Clearance        *Clearance
	Department       *string
	Phone            *string
	EmployeeID       *string
	CanApproveJORC   *bool
	CanApproveVALMIN *bool
}
