package core

import (
	"strconv"
	"time"
)

// SubjectID identifies the principal a credential was issued to
type SubjectID int64

func (s SubjectID) String() string {
	return strconv.FormatInt(int64(s), 10)
}

// CredentialKind distinguishes the two credential tiers
type CredentialKind int

const (
	// KindAccess is the short-lived credential checked on every request
	KindAccess CredentialKind = iota + 1
	// KindRefresh is the long-lived credential used only to mint new pairs
	KindRefresh
)

func (k CredentialKind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Credential is a verified or freshly issued signed token
type Credential struct {
	Kind      CredentialKind // Access or refresh
	Token     string         // Signed wire representation
	ID        string         // Unique identifier (jti)
	Subject   SubjectID      // Principal the credential asserts
	IssuedAt  time.Time      // When the credential was signed
	ExpiresAt time.Time      // When the credential stops verifying
	RefreshID string         // Access only: jti of the refresh credential minted alongside
}

// Identity is the principal resolved from a subject
type Identity struct {
	ID    SubjectID // Unique subject identifier
	Email string    // Contact address, may be empty
	Name  string    // Display name, may be empty
}

// Presented holds the credentials a caller sent with a request.
// An empty string means the credential is absent.
type Presented struct {
	Access  string
	Refresh string
}

// Renewal carries a rotated credential pair. Both fields are always set.
type Renewal struct {
	Access  Credential
	Refresh Credential
}

// Session is the successful outcome of one authentication attempt
type Session struct {
	Identity Identity
	Renewal  *Renewal // Nil when the access credential was still valid
}

// Renewed reports whether the attempt rotated the credential pair
func (s *Session) Renewed() bool {
	return s != nil && s.Renewal != nil
}
