package core

import "time"

// EventType names an audit event emitted by the session guard
type EventType string

const (
	EventRenewed       EventType = "session.renewed"
	EventRejected      EventType = "session.rejected"
	EventReuseDetected EventType = "session.reuse_detected"
	EventLogout        EventType = "session.logout"
)

// Event is an audit record describing one session decision
type Event struct {
	Type         EventType `json:"type"`
	Subject      SubjectID `json:"subject,omitempty"`
	Reason       Reason    `json:"reason,omitempty"`
	CredentialID string    `json:"credential_id,omitempty"` // jti of the credential the event is about
	ReplacedBy   string    `json:"replaced_by,omitempty"`   // jti of the refresh credential minted on renewal
	OccurredAt   time.Time `json:"occurred_at"`
}

// RevocationReason records why a credential id was revoked
type RevocationReason string

const (
	// RevokedRotated marks a refresh credential superseded by renewal
	RevokedRotated RevocationReason = "rotated"
	// RevokedLogout marks a refresh credential ended by logout
	RevokedLogout RevocationReason = "logout"
)

// Revocation is a stored revocation record
type Revocation struct {
	Reason RevocationReason
	At     time.Time
}
