package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// resourceSpec whitelists what callers may touch on a table. Dynamic SQL is
// built only from these specs, never from caller input.
type resourceSpec struct {
	table   string
	columns map[string]bool
	orderBy string
	// conflict is the upsert clause appended to inserts; makes retried
	// inserts of the same logical rows safe.
	conflict string
}

var resources = map[string]resourceSpec{
	"assignments": {
		table:    "assignments",
		columns:  set("id", "title", "status", "created_at"),
		orderBy:  "created_at DESC",
		conflict: "ON CONFLICT (id) DO NOTHING",
	},
	"questions": {
		table:    "questions",
		columns:  set("id", "assignment_id", "prompt", "position"),
		orderBy:  `"position" ASC`,
		conflict: "ON CONFLICT (id) DO NOTHING",
	},
	"submissions": {
		table:    "submissions",
		columns:  set("id", "assignment_id", "user_id", "status", "score", "started_at", "finished_at"),
		orderBy:  "started_at DESC",
		conflict: "ON CONFLICT (assignment_id, user_id) DO NOTHING",
	},
	"submission_responses": {
		table:   "submission_responses",
		columns: set("submission_id", "question_id", "payload", "is_correct"),
		orderBy: "question_id ASC",
		conflict: "ON CONFLICT (submission_id, question_id) DO UPDATE " +
			"SET payload = EXCLUDED.payload, is_correct = EXCLUDED.is_correct, updated_at = NOW()",
	},
}

func set(cols ...string) map[string]bool {
	m := make(map[string]bool, len(cols))
	for _, c := range cols {
		m[c] = true
	}
	return m
}

// PostgresDataSource implements DataSource over a pgx connection pool.
type PostgresDataSource struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgresDataSource wraps an existing pool. The pool is expected to be
// created without a hard ping; connectivity is the readiness gate's concern.
func NewPostgresDataSource(pool *pgxpool.Pool, log zerolog.Logger) *PostgresDataSource {
	return &PostgresDataSource{
		pool: pool,
		log:  log.With().Str("component", "postgres_backend").Logger(),
	}
}

// LivenessProbe returns a trivial read against one resource, suitable for
// the readiness gate's rotating probe set.
func (p *PostgresDataSource) LivenessProbe(resource string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		spec, ok := resources[resource]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownResource, resource)
		}
		rows, err := p.pool.Query(ctx, fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", spec.table))
		if err != nil {
			return fmt.Errorf("probe %s: %w", resource, err)
		}
		rows.Close()
		return rows.Err()
	}
}

func (p *PostgresDataSource) Read(ctx context.Context, resource string, filter Filter) ([]Row, error) {
	spec, ok := resources[resource]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", columnList(spec), spec.table)

	where, args, err := buildWhere(spec, filter)
	if err != nil {
		return nil, err
	}
	query += where + " ORDER BY " + spec.orderBy

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", resource, err)
	}
	defer rows.Close()

	return collectRows(rows)
}

func (p *PostgresDataSource) Insert(ctx context.Context, resource string, toInsert []Row) (Row, error) {
	spec, ok := resources[resource]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	if len(toInsert) == 0 {
		return nil, nil
	}

	// Column order comes from the first row; every row must provide the
	// same keys.
	cols := make([]string, 0, len(toInsert[0]))
	for col := range toInsert[0] {
		if !spec.columns[col] {
			return nil, fmt.Errorf("insert %s: column %q not allowed", resource, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var (
		args         []any
		placeholders []string
	)
	for _, row := range toInsert {
		marks := make([]string, len(cols))
		for i, col := range cols {
			args = append(args, row[col])
			marks[i] = fmt.Sprintf("$%d", len(args))
		}
		placeholders = append(placeholders, "("+strings.Join(marks, ", ")+")")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s %s RETURNING %s",
		spec.table, quoteJoin(cols), strings.Join(placeholders, ", "), spec.conflict, columnList(spec))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", resource, err)
	}
	defer rows.Close()

	stored, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", resource, err)
	}
	if len(stored) == 0 {
		return nil, nil // Conflict policy skipped every row.
	}
	return stored[0], nil
}

func (p *PostgresDataSource) Update(ctx context.Context, resource string, id any, patch Row) (Row, error) {
	spec, ok := resources[resource]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}

	cols := make([]string, 0, len(patch))
	for col := range patch {
		if !spec.columns[col] {
			return nil, fmt.Errorf("update %s: column %q not allowed", resource, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	assignments := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		args = append(args, patch[col])
		assignments[i] = fmt.Sprintf("%q = $%d", col, len(args))
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		spec.table, strings.Join(assignments, ", "), len(args), columnList(spec))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", resource, err)
	}
	defer rows.Close()

	stored, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", resource, err)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("update %s id=%v: %w", resource, id, ErrNoRows)
	}
	return stored[0], nil
}

func buildWhere(spec resourceSpec, filter Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		if !spec.columns[k] {
			return "", nil, fmt.Errorf("filter column %q not allowed on %s", k, spec.table)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = filter[k]
		clauses[i] = fmt.Sprintf("%q = $%d", k, i+1)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func columnList(spec resourceSpec) string {
	cols := make([]string, 0, len(spec.columns))
	for c := range spec.columns {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return quoteJoin(cols)
}

func quoteJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return strings.Join(quoted, ", ")
}

func collectRows(rows pgx.Rows) ([]Row, error) {
	fields := rows.FieldDescriptions()

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
