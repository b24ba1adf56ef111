package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/layer-3/gatekeeper/core"
)

// Querier is the subset of pgx used by the store; *pgxpool.Pool and pgx.Tx satisfy it
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore resolves identities from a users table.
//
// The pool is owned by the caller and is never closed here. Rows with a
// non-null disabled_at are treated as missing so disabled accounts lose
// their sessions on the next request.
type PostgresStore struct {
	db     Querier
	schema string
	query  string
}

// PostgresOption configures the store
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the users table (default "public")
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return errors.Errorf("identity: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed identity lookup
func NewPostgresStore(db Querier, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{
		db:     db,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.db == nil {
		return nil, errors.New("identity: nil database handle")
	}

	table := pgx.Identifier{s.schema, "users"}.Sanitize()
	s.query = fmt.Sprintf(
		`SELECT id, COALESCE(email, ''), COALESCE(name, '') FROM %s WHERE id = $1 AND disabled_at IS NULL`,
		table,
	)

	return s, nil
}

// FindByID loads the active identity with the given id
func (s *PostgresStore) FindByID(ctx context.Context, id core.SubjectID) (*core.Identity, error) {
	var (
		rowID int64
		ident core.Identity
	)

	err := s.db.QueryRow(ctx, s.query, int64(id)).Scan(&rowID, &ident.Email, &ident.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrIdentityNotFound
		}
		return nil, errors.Wrapf(err, "failed to load identity %d", id)
	}

	ident.ID = core.SubjectID(rowID)
	return &ident, nil
}
