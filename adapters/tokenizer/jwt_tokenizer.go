package tokenizer

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/layer-3/gatekeeper/core"
)

const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"

const (
	// DefaultAccessTTL is the lifetime of access tokens
	DefaultAccessTTL = 24 * time.Hour
	// DefaultRefreshTTL is the lifetime of refresh tokens
	DefaultRefreshTTL = 30 * 24 * time.Hour

	maxLeeway = 2 * time.Minute
)

// VerifyOptions tune a single verification
type VerifyOptions struct {
	Issuer string           // Required iss claim, empty disables the check
	Leeway time.Duration    // Clock skew tolerated on exp
	Now    func() time.Time // Verification clock, defaults to time.Now
}

// Verify checks tokenStr against secret and returns the credential it encodes.
// Failures are always *core.VerifyError; only core.VerifyExpired is retry-eligible.
func Verify(tokenStr string, secret []byte, kind core.CredentialKind, opts VerifyOptions) (*core.Credential, error) {
	if tokenStr == "" {
		return nil, &core.VerifyError{Kind: core.VerifyMalformed, Err: errors.New("empty token")}
	}

	audience, err := audienceFor(kind)
	if err != nil {
		return nil, &core.VerifyError{Kind: core.VerifyOther, Err: err}
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(opts.Leeway))
	}
	if opts.Now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(opts.Now))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(parserOpts...).ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	// Validate token
	if !token.Valid {
		return nil, &core.VerifyError{Kind: core.VerifyOther, Err: errors.New("token is not valid")}
	}

	if claims.UserID <= 0 || claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return nil, &core.VerifyError{Kind: core.VerifyOther, Err: core.ErrMissingSubject}
	}
	if claims.ID == "" {
		return nil, &core.VerifyError{Kind: core.VerifyOther, Err: errors.New("token has no id")}
	}

	cred := &core.Credential{
		Kind:      kind,
		Token:     tokenStr,
		ID:        claims.ID,
		Subject:   core.SubjectID(claims.UserID),
		ExpiresAt: claims.ExpiresAt.Time,
		RefreshID: claims.RefreshID,
	}
	if claims.IssuedAt != nil {
		cred.IssuedAt = claims.IssuedAt.Time
	}

	return cred, nil
}

// classify maps jwt parser errors onto verification failure tags.
// Signature problems win over claim problems, and expiry only counts when
// no other claim failed.
func classify(err error) *core.VerifyError {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &core.VerifyError{Kind: core.VerifyMalformed, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &core.VerifyError{Kind: core.VerifyBadSignature, Err: err}
	case errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return &core.VerifyError{Kind: core.VerifyOther, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &core.VerifyError{Kind: core.VerifyExpired, Err: err}
	default:
		return &core.VerifyError{Kind: core.VerifyOther, Err: err}
	}
}

func audienceFor(kind core.CredentialKind) (string, error) {
	switch kind {
	case core.KindAccess:
		return AudienceAccess, nil
	case core.KindRefresh:
		return AudienceRefresh, nil
	default:
		return "", errors.Errorf("unknown credential kind %d", kind)
	}
}

// Config holds the secrets and lifetimes of both credential kinds
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
	Now           func() time.Time
}

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	cfg Config
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(cfg Config) (*JWTTokenizer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets must be provided")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh ttl must not be shorter than access ttl")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.Errorf("leeway must be between 0 and %s", maxLeeway)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &JWTTokenizer{cfg: cfg}, nil
}

// IssueAccess signs an access token for subject, linked to the refresh token refreshID
func (j *JWTTokenizer) IssueAccess(subject core.SubjectID, refreshID string) (core.Credential, error) {
	return j.issue(core.KindAccess, subject, refreshID)
}

// IssueRefresh signs a refresh token for subject
func (j *JWTTokenizer) IssueRefresh(subject core.SubjectID) (core.Credential, error) {
	return j.issue(core.KindRefresh, subject, "")
}

// VerifyAccess parses and validates an access token
func (j *JWTTokenizer) VerifyAccess(tokenStr string) (*core.Credential, error) {
	return Verify(tokenStr, j.cfg.AccessSecret, core.KindAccess, j.verifyOptions())
}

// VerifyRefresh parses and validates a refresh token
func (j *JWTTokenizer) VerifyRefresh(tokenStr string) (*core.Credential, error) {
	return Verify(tokenStr, j.cfg.RefreshSecret, core.KindRefresh, j.verifyOptions())
}

// Lifetime returns the configured lifetime of a credential kind
func (j *JWTTokenizer) Lifetime(kind core.CredentialKind) time.Duration {
	if kind == core.KindRefresh {
		return j.cfg.RefreshTTL
	}
	return j.cfg.AccessTTL
}

func (j *JWTTokenizer) verifyOptions() VerifyOptions {
	return VerifyOptions{
		Issuer: j.cfg.Issuer,
		Leeway: j.cfg.Leeway,
		Now:    j.cfg.Now,
	}
}

func (j *JWTTokenizer) issue(kind core.CredentialKind, subject core.SubjectID, refreshID string) (core.Credential, error) {
	if subject <= 0 {
		return core.Credential{}, core.ErrMissingSubject
	}

	audience, err := audienceFor(kind)
	if err != nil {
		return core.Credential{}, err
	}

	secret := j.cfg.AccessSecret
	if kind == core.KindRefresh {
		secret = j.cfg.RefreshSecret
	}

	// Numeric dates carry whole seconds
	now := j.cfg.Now().Truncate(time.Second)
	expiresAt := now.Add(j.Lifetime(kind))

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.cfg.Issuer,
			Subject:   strconv.FormatInt(int64(subject), 10),
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		UserID:    int64(subject),
		RefreshID: refreshID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(secret)
	if err != nil {
		return core.Credential{}, errors.Wrapf(err, "failed to sign %s token", kind)
	}

	return core.Credential{
		Kind:      kind,
		Token:     signedToken,
		ID:        claims.ID,
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		RefreshID: refreshID,
	}, nil
}
