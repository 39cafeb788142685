// Package postgres provides a PostgreSQL implementation of functions.Store.
// It uses pgx/v5 for connection pooling and JSONB for dependency lists and
// schemas.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/funcrun/pkg/functions"
	"github.com/rhuss/funcrun/pkg/storage"
)

const selectColumns = `name, description, runtime_kind, deps, code,
	input_schema, output_schema, created_at, updated_at`

// Store is a PostgreSQL-backed function store.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Ensure Store implements functions.Store at compile time.
var _ functions.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, now: time.Now}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Save inserts a new function.
func (s *Store) Save(ctx context.Context, fn functions.Function) error {
	depsJSON, err := json.Marshal(nonNil(fn.Deps))
	if err != nil {
		return fmt.Errorf("marshaling deps: %w", err)
	}

	runtime := fn.Runtime.Kind
	if runtime == "" {
		runtime = functions.RuntimePython
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO functions (
			name, description, runtime_kind, deps, code,
			input_schema, output_schema, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		fn.Name, fn.Description, runtime, depsJSON, fn.Code,
		nullJSON(fn.InputSchema), nullJSON(fn.OutputSchema), fn.CreatedAt, fn.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting function: %w", err)
	}
	return nil
}

// Get retrieves a function by name.
func (s *Store) Get(ctx context.Context, name string) (*functions.Function, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM functions WHERE name = $1`, name)
	fn, err := scanFunction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("querying function: %w", err)
	}
	return fn, nil
}

// List returns functions ordered by name. One extra row is fetched to
// detect whether another page exists.
func (s *Store) List(ctx context.Context, opts functions.ListOptions) (*functions.FunctionList, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = functions.DefaultListLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM functions
		WHERE $1 = '' OR name > $1
		ORDER BY name ASC
		LIMIT $2
	`, opts.After, limit+1)
	if err != nil {
		return nil, fmt.Errorf("listing functions: %w", err)
	}
	fns, err := collect(rows)
	if err != nil {
		return nil, err
	}

	result := &functions.FunctionList{Data: fns}
	if len(fns) > limit {
		result.Data = fns[:limit]
		result.HasMore = true
		result.NextCursor = result.Data[limit-1].Name
	}
	return result, nil
}

// Search returns functions whose name contains query, ignoring case.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]functions.Function, error) {
	if limit <= 0 {
		limit = functions.DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM functions
		WHERE name ILIKE $1
		ORDER BY updated_at DESC, name ASC
		LIMIT $2
	`, "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("searching functions: %w", err)
	}
	return collect(rows)
}

// Update applies the present fields of u in a single statement.
func (s *Store) Update(ctx context.Context, name string, u functions.Update) (*functions.Function, error) {
	var depsJSON []byte
	if u.Deps != nil {
		b, err := json.Marshal(u.Deps)
		if err != nil {
			return nil, fmt.Errorf("marshaling deps: %w", err)
		}
		depsJSON = b
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE functions SET
			description   = COALESCE($2, description),
			deps          = COALESCE($3, deps),
			code          = COALESCE($4, code),
			input_schema  = COALESCE($5, input_schema),
			output_schema = COALESCE($6, output_schema),
			updated_at    = $7
		WHERE name = $1
		RETURNING `+selectColumns,
		name, u.Description, nullJSON(depsJSON), u.Code,
		nullJSON(u.InputSchema), nullJSON(u.OutputSchema), s.now().Unix(),
	)
	fn, err := scanFunction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("updating function: %w", err)
	}
	return fn, nil
}

// Delete removes a function by name.
func (s *Store) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM functions WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("deleting function: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Exists reports whether a function with the given name is stored.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM functions WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking function: %w", err)
	}
	return exists, nil
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanFunction(row pgx.Row) (*functions.Function, error) {
	var (
		fn                        functions.Function
		depsJSON                  []byte
		inputSchema, outputSchema []byte
	)
	if err := row.Scan(
		&fn.Name, &fn.Description, &fn.Runtime.Kind, &depsJSON, &fn.Code,
		&inputSchema, &outputSchema, &fn.CreatedAt, &fn.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(depsJSON, &fn.Deps); err != nil {
		return nil, fmt.Errorf("unmarshaling deps: %w", err)
	}
	if len(inputSchema) > 0 {
		fn.InputSchema = inputSchema
	}
	if len(outputSchema) > 0 {
		fn.OutputSchema = outputSchema
	}
	return &fn, nil
}

func collect(rows pgx.Rows) ([]functions.Function, error) {
	defer rows.Close()

	var fns []functions.Function
	for rows.Next() {
		fn, err := scanFunction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning function: %w", err)
		}
		fns = append(fns, *fn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating functions: %w", err)
	}
	return fns, nil
}

func nonNil(deps []string) []string {
	if deps == nil {
		return []string{}
	}
	return deps
}

// nullJSON returns nil for empty JSON, so the column is stored as NULL.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
