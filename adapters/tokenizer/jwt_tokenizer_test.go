package tokenizer

import (
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/gatekeeper/core"
)

var (
	accessSecret  = []byte("access-secret-for-tests")
	refreshSecret = []byte("refresh-secret-for-tests")
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTokenizer(t *testing.T, clock *fakeClock) *JWTTokenizer {
	t.Helper()
	tok, err := NewJWTTokenizer(Config{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		Issuer:        "gatekeeper-test",
		Now:           clock.Now,
	})
	require.NoError(t, err)
	return tok
}

func signClaims(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func testClaims(subject int64, audience string, expiresAt time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "gatekeeper-test",
			Subject:   strconv.FormatInt(subject, 10),
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-time.Hour)),
			ID:        "jti-1",
		},
		UserID: subject,
	}
}

func verifyKind(t *testing.T, err error) core.VerifyFailure {
	t.Helper()
	var verr *core.VerifyError
	require.ErrorAs(t, err, &verr)
	return verr.Kind
}

func TestJWTTokenizer_IssueAndVerify(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tok := newTestTokenizer(t, clock)

	refresh, err := tok.IssueRefresh(42)
	require.NoError(t, err)
	access, err := tok.IssueAccess(42, refresh.ID)
	require.NoError(t, err)

	t.Run("access", func(t *testing.T) {
		cred, err := tok.VerifyAccess(access.Token)
		require.NoError(t, err)
		assert.Equal(t, core.KindAccess, cred.Kind)
		assert.Equal(t, core.SubjectID(42), cred.Subject)
		assert.Equal(t, access.ID, cred.ID)
		assert.Equal(t, refresh.ID, cred.RefreshID)
		assert.Equal(t, clock.now.Add(DefaultAccessTTL).Unix(), cred.ExpiresAt.Unix())
	})

	t.Run("refresh", func(t *testing.T) {
		cred, err := tok.VerifyRefresh(refresh.Token)
		require.NoError(t, err)
		assert.Equal(t, core.KindRefresh, cred.Kind)
		assert.Equal(t, core.SubjectID(42), cred.Subject)
		assert.Empty(t, cred.RefreshID)
		assert.Equal(t, clock.now.Add(DefaultRefreshTTL).Unix(), cred.ExpiresAt.Unix())
	})

	t.Run("each issue gets a new id", func(t *testing.T) {
		again, err := tok.IssueRefresh(42)
		require.NoError(t, err)
		assert.NotEqual(t, refresh.ID, again.ID)
		assert.NotEqual(t, refresh.Token, again.Token)
	})
}

func TestJWTTokenizer_Expired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tok := newTestTokenizer(t, clock)

	access, err := tok.IssueAccess(7, "")
	require.NoError(t, err)

	clock.Advance(DefaultAccessTTL)
	_, err = tok.VerifyAccess(access.Token)
	assert.Equal(t, core.VerifyExpired, verifyKind(t, err))
	assert.True(t, core.IsExpired(err))
}

func TestJWTTokenizer_Leeway(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tok, err := NewJWTTokenizer(Config{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		Leeway:        time.Minute,
		Now:           clock.Now,
	})
	require.NoError(t, err)

	access, err := tok.IssueAccess(7, "")
	require.NoError(t, err)

	clock.Advance(DefaultAccessTTL + 30*time.Second)
	_, err = tok.VerifyAccess(access.Token)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = tok.VerifyAccess(access.Token)
	assert.Equal(t, core.VerifyExpired, verifyKind(t, err))
}

func TestVerify_Failures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opts := VerifyOptions{Issuer: "gatekeeper-test", Now: func() time.Time { return now }}
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	noSubject := testClaims(0, AudienceAccess, future)
	noSubject.Subject = ""

	mismatchedSubject := testClaims(5, AudienceAccess, future)
	mismatchedSubject.Subject = "6"

	wrongIssuer := testClaims(5, AudienceAccess, future)
	wrongIssuer.Issuer = "someone-else"

	tests := []struct {
		name  string
		token string
		want  core.VerifyFailure
	}{
		{
			name:  "empty",
			token: "",
			want:  core.VerifyMalformed,
		},
		{
			name:  "not a jwt",
			token: "definitely-not-a-token",
			want:  core.VerifyMalformed,
		},
		{
			name:  "garbage segments",
			token: "a.b.c",
			want:  core.VerifyMalformed,
		},
		{
			name:  "wrong secret",
			token: signClaims(t, jwt.SigningMethodHS256, []byte("other"), testClaims(5, AudienceAccess, future)),
			want:  core.VerifyBadSignature,
		},
		{
			name:  "wrong secret and expired",
			token: signClaims(t, jwt.SigningMethodHS256, []byte("other"), testClaims(5, AudienceAccess, past)),
			want:  core.VerifyBadSignature,
		},
		{
			name:  "alg none",
			token: signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, testClaims(5, AudienceAccess, future)),
			want:  core.VerifyBadSignature,
		},
		{
			name:  "other hmac algorithm",
			token: signClaims(t, jwt.SigningMethodHS512, accessSecret, testClaims(5, AudienceAccess, future)),
			want:  core.VerifyBadSignature,
		},
		{
			name:  "expired",
			token: signClaims(t, jwt.SigningMethodHS256, accessSecret, testClaims(5, AudienceAccess, past)),
			want:  core.VerifyExpired,
		},
		{
			name:  "wrong audience",
			token: signClaims(t, jwt.SigningMethodHS256, accessSecret, testClaims(5, AudienceRefresh, future)),
			want:  core.VerifyOther,
		},
		{
			name:  "wrong audience and expired",
			token: signClaims(t, jwt.SigningMethodHS256, accessSecret, testClaims(5, AudienceRefresh, past)),
			want:  core.VerifyOther,
		},
		{
			name:  "wrong issuer",
			token: signClaims(t, jwt.SigningMethodHS256, accessSecret, wrongIssuer),
			want:  core.VerifyOther,
		},
		{
			name:  "no subject",
			token: signClaims(t, jwt.SigningMethodHS256, accessSecret, noSubject),
			want:  core.VerifyOther,
		},
		{
			name:  "subject mismatch",
			token: signClaims(t, jwt.SigningMethodHS256, accessSecret, mismatchedSubject),
			want:  core.VerifyOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := Verify(tt.token, accessSecret, core.KindAccess, opts)
			assert.Nil(t, cred)
			assert.Equal(t, tt.want, verifyKind(t, err))
		})
	}
}

func TestVerify_MissingExpiry(t *testing.T) {
	claims := testClaims(5, AudienceAccess, time.Now().Add(time.Hour))
	claims.ExpiresAt = nil

	_, err := Verify(signClaims(t, jwt.SigningMethodHS256, accessSecret, claims), accessSecret, core.KindAccess, VerifyOptions{})
	assert.Equal(t, core.VerifyOther, verifyKind(t, err))
}

func TestNewJWTTokenizer_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "missing access secret",
			cfg:  Config{RefreshSecret: refreshSecret},
		},
		{
			name: "missing refresh secret",
			cfg:  Config{AccessSecret: accessSecret},
		},
		{
			name: "shared secret",
			cfg:  Config{AccessSecret: accessSecret, RefreshSecret: accessSecret},
		},
		{
			name: "refresh shorter than access",
			cfg:  Config{AccessSecret: accessSecret, RefreshSecret: refreshSecret, AccessTTL: time.Hour, RefreshTTL: time.Minute},
		},
		{
			name: "leeway too large",
			cfg:  Config{AccessSecret: accessSecret, RefreshSecret: refreshSecret, Leeway: time.Hour},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJWTTokenizer(tt.cfg)
			assert.Error(t, err)
		})
	}

	tok, err := NewJWTTokenizer(Config{AccessSecret: accessSecret, RefreshSecret: refreshSecret})
	require.NoError(t, err)
	assert.Equal(t, DefaultAccessTTL, tok.Lifetime(core.KindAccess))
	assert.Equal(t, DefaultRefreshTTL, tok.Lifetime(core.KindRefresh))
}

func TestJWTTokenizer_IssueRejectsZeroSubject(t *testing.T) {
	tok := newTestTokenizer(t, &fakeClock{now: time.Now()})
	_, err := tok.IssueAccess(0, "")
	assert.ErrorIs(t, err, core.ErrMissingSubject)
}
