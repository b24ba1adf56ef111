package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrIdentityNotFound is returned by identity stores when a subject has no active identity
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrMissingSubject is returned when a signed credential carries no usable subject
	ErrMissingSubject = errors.New("credential has no subject")
	// ErrCredentialRevoked is returned when a credential was revoked before it expired
	ErrCredentialRevoked = errors.New("credential has been revoked")
	// ErrRefreshReuse is returned when a superseded refresh credential is presented again
	ErrRefreshReuse = errors.New("refresh credential reuse detected")
)

// VerifyFailure tags why a credential failed verification
type VerifyFailure int

const (
	// VerifyMalformed means the credential could not be parsed
	VerifyMalformed VerifyFailure = iota + 1
	// VerifyBadSignature means the signature does not match the secret
	VerifyBadSignature
	// VerifyExpired means the signature is valid but the expiry has passed.
	// It is the only failure that may trigger the refresh fallback.
	VerifyExpired
	// VerifyOther covers every remaining verification error
	VerifyOther
)

func (f VerifyFailure) String() string {
	switch f {
	case VerifyMalformed:
		return "malformed"
	case VerifyBadSignature:
		return "bad_signature"
	case VerifyExpired:
		return "expired"
	case VerifyOther:
		return "other"
	default:
		return "unknown"
	}
}

// VerifyError is the failure returned by credential verification
type VerifyError struct {
	Kind VerifyFailure
	Err  error
}

func (e *VerifyError) Error() string {
	if e.Err == nil {
		return "credential " + e.Kind.String()
	}
	return fmt.Sprintf("credential %s: %v", e.Kind, e.Err)
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// IsExpired reports whether err is a verification failure caused only by expiry
func IsExpired(err error) bool {
	var verr *VerifyError
	return errors.As(err, &verr) && verr.Kind == VerifyExpired
}

// Reason is the session-level classification of a rejected attempt
type Reason string

const (
	ReasonMissingCredential        Reason = "missing_credential"
	ReasonInvalidCredential        Reason = "invalid_credential"
	ReasonInvalidRefreshCredential Reason = "invalid_refresh_credential"
	ReasonIdentityNotFound         Reason = "identity_not_found"
	ReasonStoreUnavailable         Reason = "store_unavailable"
)

// Cleanup is the set of stored credentials the boundary must erase
type Cleanup uint8

const (
	ClearAccess Cleanup = 1 << iota
	ClearRefresh

	ClearNone Cleanup = 0
	ClearBoth         = ClearAccess | ClearRefresh
)

// Has reports whether the set contains the credential kind
func (c Cleanup) Has(kind CredentialKind) bool {
	switch kind {
	case KindAccess:
		return c&ClearAccess != 0
	case KindRefresh:
		return c&ClearRefresh != 0
	default:
		return false
	}
}

// AuthError is a rejected authentication attempt.
// Cause holds the internal detail for audit logs and must not reach the caller.
type AuthError struct {
	Reason Reason
	Clear  Cleanup
	Cause  error
}

// Reasons as sentinels, for use with errors.Is
var (
	ErrMissingCredential        = &AuthError{Reason: ReasonMissingCredential}
	ErrInvalidCredential        = &AuthError{Reason: ReasonInvalidCredential}
	ErrInvalidRefreshCredential = &AuthError{Reason: ReasonInvalidRefreshCredential}
	ErrUnknownIdentity          = &AuthError{Reason: ReasonIdentityNotFound}
	ErrStoreUnavailable         = &AuthError{Reason: ReasonStoreUnavailable}
)

// Reject builds an AuthError
func Reject(reason Reason, cleanup Cleanup, cause error) *AuthError {
	return &AuthError{Reason: reason, Clear: cleanup, Cause: cause}
}

func (e *AuthError) Error() string {
	if e.Cause == nil {
		return "authentication failed: " + string(e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Cause)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Is matches any AuthError with the same reason
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// Retryable reports whether the caller may retry the same request later
func (e *AuthError) Retryable() bool {
	return e.Reason == ReasonStoreUnavailable
}
