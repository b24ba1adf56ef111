package ports

import "github.com/layer-3/gatekeeper/core"

// Tokenizer converts between credentials and signed tokens
type Tokenizer interface {
	// Issuance
	IssueAccess(subject core.SubjectID, refreshID string) (core.Credential, error)
	IssueRefresh(subject core.SubjectID) (core.Credential, error)

	// Verification. Failures are *core.VerifyError.
	VerifyAccess(token string) (*core.Credential, error)
	VerifyRefresh(token string) (*core.Credential, error)
}
