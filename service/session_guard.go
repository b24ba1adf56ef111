package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/internal/logs"
	"github.com/layer-3/gatekeeper/ports"
)

const (
	// DefaultReuseGrace is how long a rotated refresh credential is still honoured.
	// Concurrent requests holding the same refresh credential renew independently within it.
	DefaultReuseGrace = 10 * time.Second
	// DefaultLookupTimeout bounds each store round trip of an attempt
	DefaultLookupTimeout = 3 * time.Second

	outcomeAuthenticated = "authenticated"
	outcomeRenewed       = "renewed"
)

// state is a step of one authentication attempt
type state int

const (
	stateStart state = iota
	stateVerifyAccess
	stateVerifyRefresh
	stateLookup
	stateIssue
	stateReject
	stateDone
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateVerifyAccess:
		return "verify_access"
	case stateVerifyRefresh:
		return "verify_refresh"
	case stateLookup:
		return "lookup"
	case stateIssue:
		return "issue"
	case stateReject:
		return "reject"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// SessionGuard decides whether a request carries a valid session,
// renewing the credential pair when only the access credential expired.
type SessionGuard struct {
	tokenizer  ports.Tokenizer
	identities ports.IdentityLookup
	store      ports.RevocationStore
	eventPub   ports.EventPublisher
	metrics    ports.Metrics
	logger     *slog.Logger
	now        func() time.Time

	reuseGrace    time.Duration
	lookupTimeout time.Duration
}

// Option configures a SessionGuard
type Option func(*SessionGuard)

// WithEventPublisher publishes audit events through p
func WithEventPublisher(p ports.EventPublisher) Option {
	return func(g *SessionGuard) { g.eventPub = p }
}

// WithMetrics records outcomes through m
func WithMetrics(m ports.Metrics) Option {
	return func(g *SessionGuard) { g.metrics = m }
}

// WithLogger sets the fallback logger used when the context carries none
func WithLogger(l *slog.Logger) Option {
	return func(g *SessionGuard) { g.logger = l }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(g *SessionGuard) { g.now = now }
}

// WithReuseGrace sets how long a rotated refresh credential stays usable. Zero disables it.
func WithReuseGrace(d time.Duration) Option {
	return func(g *SessionGuard) { g.reuseGrace = d }
}

// WithLookupTimeout bounds each store call
func WithLookupTimeout(d time.Duration) Option {
	return func(g *SessionGuard) { g.lookupTimeout = d }
}

// NewSessionGuard creates a new session guard
func NewSessionGuard(
	tokenizer ports.Tokenizer,
	identities ports.IdentityLookup,
	store ports.RevocationStore,
	opts ...Option,
) *SessionGuard {
	g := &SessionGuard{
		tokenizer:     tokenizer,
		identities:    identities,
		store:         store,
		logger:        logs.Discard(),
		now:           time.Now,
		reuseGrace:    DefaultReuseGrace,
		lookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.reuseGrace < 0 {
		g.reuseGrace = 0
	}
	return g
}

// attempt is the data carried between the states of one Authenticate call
type attempt struct {
	presented core.Presented

	subject core.SubjectID
	refresh *core.Credential // verified refresh credential, set only on the renewal path
	rotated bool             // refresh credential was already rotated and is inside the grace window

	identity *core.Identity
	renewal  *core.Renewal

	rejection    *core.AuthError
	reused       bool
	credentialID string // jti of the refresh credential behind a reuse rejection
}

func (a *attempt) reject(reason core.Reason, cleanup core.Cleanup, cause error) state {
	a.rejection = core.Reject(reason, cleanup, cause)
	return stateReject
}

// Authenticate verifies the presented credentials and resolves the identity they belong to.
// When the access credential is expired and a valid refresh credential is presented,
// a new pair is minted and returned in Session.Renewal.
// Failures are *core.AuthError; Clear names the stored credentials the caller must erase.
func (g *SessionGuard) Authenticate(ctx context.Context, presented core.Presented) (*core.Session, error) {
	started := g.now()
	a := &attempt{presented: presented}

	st := stateStart
	for st != stateDone && st != stateReject {
		st = g.step(ctx, st, a)
	}

	if g.metrics != nil {
		g.metrics.ObserveDuration(g.now().Sub(started))
	}

	if st == stateReject {
		g.rejected(ctx, a)
		return nil, a.rejection
	}

	session := &core.Session{Identity: *a.identity, Renewal: a.renewal}
	if session.Renewed() {
		g.renewed(ctx, a)
	} else {
		g.observe(outcomeAuthenticated)
	}
	return session, nil
}

func (g *SessionGuard) step(ctx context.Context, st state, a *attempt) state {
	switch st {
	case stateStart:
		return g.start(a)
	case stateVerifyAccess:
		return g.verifyAccess(ctx, a)
	case stateVerifyRefresh:
		return g.verifyRefresh(ctx, a)
	case stateLookup:
		return g.lookup(ctx, a)
	case stateIssue:
		return g.issue(ctx, a)
	default:
		return a.reject(core.ReasonInvalidCredential, core.ClearNone, errors.Errorf("unexpected state %s", st))
	}
}

func (g *SessionGuard) start(a *attempt) state {
	if a.presented.Access == "" {
		return a.reject(core.ReasonMissingCredential, core.ClearNone, errors.New("no access credential presented"))
	}
	return stateVerifyAccess
}

func (g *SessionGuard) verifyAccess(ctx context.Context, a *attempt) state {
	cred, err := g.tokenizer.VerifyAccess(a.presented.Access)
	if err != nil {
		if core.IsExpired(err) && a.presented.Refresh != "" {
			return stateVerifyRefresh
		}
		return a.reject(core.ReasonInvalidCredential, core.ClearBoth, err)
	}

	// An access credential dies with the session it was minted for
	if cred.RefreshID != "" {
		rev, err := g.revocation(ctx, cred.RefreshID)
		if err != nil {
			return a.reject(core.ReasonStoreUnavailable, core.ClearNone, err)
		}
		if rev != nil && rev.Reason == core.RevokedLogout {
			return a.reject(core.ReasonInvalidCredential, core.ClearBoth, core.ErrCredentialRevoked)
		}
	}

	a.subject = cred.Subject
	return stateLookup
}

func (g *SessionGuard) verifyRefresh(ctx context.Context, a *attempt) state {
	cred, err := g.tokenizer.VerifyRefresh(a.presented.Refresh)
	if err != nil {
		return a.reject(core.ReasonInvalidRefreshCredential, core.ClearRefresh, err)
	}

	rev, err := g.revocation(ctx, cred.ID)
	if err != nil {
		return a.reject(core.ReasonStoreUnavailable, core.ClearNone, err)
	}
	if rev != nil {
		switch {
		case rev.Reason == core.RevokedLogout:
			return a.reject(core.ReasonInvalidRefreshCredential, core.ClearRefresh, core.ErrCredentialRevoked)
		case g.now().Sub(rev.At) > g.reuseGrace:
			a.subject = cred.Subject
			a.reused = true
			a.credentialID = cred.ID
			return a.reject(core.ReasonInvalidRefreshCredential, core.ClearRefresh,
				errors.Wrapf(core.ErrRefreshReuse, "rotated %s ago", g.now().Sub(rev.At).Round(time.Second)))
		}
		a.rotated = true
	}

	a.refresh = cred
	a.subject = cred.Subject
	return stateLookup
}

func (g *SessionGuard) lookup(ctx context.Context, a *attempt) state {
	lctx, cancel := g.storeContext(ctx)
	defer cancel()

	identity, err := g.identities.FindByID(lctx, a.subject)
	if err != nil {
		if errors.Is(err, core.ErrIdentityNotFound) {
			return a.reject(core.ReasonIdentityNotFound, core.ClearBoth, err)
		}
		return a.reject(core.ReasonStoreUnavailable, core.ClearNone, errors.Wrap(err, "identity lookup failed"))
	}
	if identity == nil {
		return a.reject(core.ReasonIdentityNotFound, core.ClearBoth, core.ErrIdentityNotFound)
	}

	a.identity = identity
	if a.refresh != nil {
		return stateIssue
	}
	return stateDone
}

func (g *SessionGuard) issue(ctx context.Context, a *attempt) state {
	// Record the rotation before minting so a store failure leaves the old pair untouched
	if !a.rotated {
		ttl := a.refresh.ExpiresAt.Sub(g.now())
		rev := core.Revocation{Reason: core.RevokedRotated, At: g.now()}
		if err := g.revoke(ctx, a.refresh.ID, rev, ttl); err != nil {
			return a.reject(core.ReasonStoreUnavailable, core.ClearNone, err)
		}
	}

	subject := a.identity.ID
	refresh, err := g.tokenizer.IssueRefresh(subject)
	if err != nil {
		return a.reject(core.ReasonInvalidRefreshCredential, core.ClearRefresh, errors.Wrap(err, "failed to issue refresh credential"))
	}
	access, err := g.tokenizer.IssueAccess(subject, refresh.ID)
	if err != nil {
		return a.reject(core.ReasonInvalidRefreshCredential, core.ClearRefresh, errors.Wrap(err, "failed to issue access credential"))
	}

	a.renewal = &core.Renewal{Access: access, Refresh: refresh}
	return stateDone
}

// Logout revokes the presented refresh credential and every access credential minted with it.
// An expired refresh credential needs no record and succeeds as a no-op.
func (g *SessionGuard) Logout(ctx context.Context, presented core.Presented) error {
	if presented.Refresh == "" {
		return core.Reject(core.ReasonMissingCredential, core.ClearBoth, errors.New("no refresh credential presented"))
	}

	cred, err := g.tokenizer.VerifyRefresh(presented.Refresh)
	if err != nil {
		if core.IsExpired(err) {
			return nil
		}
		return core.Reject(core.ReasonInvalidRefreshCredential, core.ClearBoth, err)
	}

	rev := core.Revocation{Reason: core.RevokedLogout, At: g.now()}
	if err := g.revoke(ctx, cred.ID, rev, cred.ExpiresAt.Sub(g.now())); err != nil {
		return core.Reject(core.ReasonStoreUnavailable, core.ClearBoth, err)
	}

	logs.FromContext(ctx, g.logger).Info("session logged out",
		slog.Int64("subject", int64(cred.Subject)),
		slog.String("credential_id", cred.ID))
	g.publish(ctx, core.Event{
		Type:         core.EventLogout,
		Subject:      cred.Subject,
		CredentialID: cred.ID,
		OccurredAt:   g.now(),
	})
	return nil
}

func (g *SessionGuard) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.lookupTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.lookupTimeout)
}

func (g *SessionGuard) revocation(ctx context.Context, tokenID string) (*core.Revocation, error) {
	sctx, cancel := g.storeContext(ctx)
	defer cancel()

	rev, err := g.store.Revocation(sctx, tokenID)
	if err != nil {
		return nil, errors.Wrap(err, "revocation lookup failed")
	}
	return rev, nil
}

func (g *SessionGuard) revoke(ctx context.Context, tokenID string, rev core.Revocation, ttl time.Duration) error {
	sctx, cancel := g.storeContext(ctx)
	defer cancel()

	if err := g.store.Revoke(sctx, tokenID, rev, ttl); err != nil {
		return errors.Wrap(err, "failed to revoke credential")
	}
	return nil
}

func (g *SessionGuard) renewed(ctx context.Context, a *attempt) {
	g.observe(outcomeRenewed)
	logs.FromContext(ctx, g.logger).Info("session renewed",
		slog.Int64("subject", int64(a.subject)),
		slog.String("credential_id", a.refresh.ID),
		slog.String("replaced_by", a.renewal.Refresh.ID),
		slog.Bool("within_grace", a.rotated))
	g.publish(ctx, core.Event{
		Type:         core.EventRenewed,
		Subject:      a.subject,
		CredentialID: a.refresh.ID,
		ReplacedBy:   a.renewal.Refresh.ID,
		OccurredAt:   g.now(),
	})
}

func (g *SessionGuard) rejected(ctx context.Context, a *attempt) {
	rej := a.rejection
	g.observe(string(rej.Reason))

	attrs := []any{slog.String("reason", string(rej.Reason))}
	if a.subject != 0 {
		attrs = append(attrs, slog.Int64("subject", int64(a.subject)))
	}
	if rej.Cause != nil {
		attrs = append(attrs, slog.String("cause", rej.Cause.Error()))
	}

	logger := logs.FromContext(ctx, g.logger)
	switch rej.Reason {
	case core.ReasonMissingCredential:
		logger.Debug("session rejected", attrs...)
	case core.ReasonInvalidRefreshCredential, core.ReasonStoreUnavailable:
		logger.Error("session rejected", attrs...)
	default:
		logger.Warn("session rejected", attrs...)
	}

	if rej.Reason == core.ReasonMissingCredential {
		return
	}

	event := core.Event{
		Type:       core.EventRejected,
		Subject:    a.subject,
		Reason:     rej.Reason,
		OccurredAt: g.now(),
	}
	if a.reused {
		event.Type = core.EventReuseDetected
		event.CredentialID = a.credentialID
	}
	g.publish(ctx, event)
}

func (g *SessionGuard) observe(outcome string) {
	if g.metrics != nil {
		g.metrics.ObserveOutcome(outcome)
	}
}

// publish never fails the attempt; the decision is already made
func (g *SessionGuard) publish(ctx context.Context, event core.Event) {
	if g.eventPub == nil {
		return
	}
	if err := g.eventPub.Publish(ctx, event); err != nil {
		logs.FromContext(ctx, g.logger).Warn("failed to publish session event",
			slog.String("event_type", string(event.Type)),
			slog.String("error", err.Error()))
	}
}
