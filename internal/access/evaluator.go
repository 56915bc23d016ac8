// Package access decides document visibility from attributes of the
// requesting profile and the target document. Evaluation is pure: callers
// audit the attempt themselves.
package access

import (
	"strings"

	"corevault.org/internal/document"
	"corevault.org/internal/identity"
)

// Document confidentiality labels map onto the same ordinal scale as profile
// clearance. Comparison is case-insensitive; anything unrecognised counts as
// internal.
var confidentialityOrdinals = map[string]int{
	document.ConfidentialityPublic:         0,
	document.ConfidentialityInternal:       1,
	document.ConfidentialityConfidential:   2,
	document.ConfidentialityJORCRestricted: 3,
}

const defaultConfidentialityOrdinal = 1 // internal

// ConfidentialityOrdinal ranks a document confidentiality label.
func ConfidentialityOrdinal(label string) int {
	ordinal, ok := confidentialityOrdinals[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return defaultConfidentialityOrdinal
	}
	return ordinal
}

// CanAccess reports whether the profile may read the document.
//
// A document without an organisation skips the tenant check entirely. That
// permissiveness is deliberate (unscoped documents behave as cross-tenant);
// see DESIGN.md before tightening it.
func CanAccess(profile identity.Profile, doc document.Document) bool {
	if doc.OrganisationID != "" && doc.OrganisationID != profile.OrganisationID {
		return false
	}
	return profile.Clearance.Ordinal() >= ConfidentialityOrdinal(doc.Confidentiality)
}
