// Package postgres implements the store interfaces directly against the RSD
// database, for deployments that run next to it without PostgREST.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/observability/metrics"
	"rsd-scraper/internal/repository"
	"rsd-scraper/internal/resilience/circuitbreaker"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const backendName = "postgres"

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store implements repository.TargetRepository, repository.MentionRepository
// and repository.ErrorRepository on a *sql.DB. Every statement runs through
// the database circuit breaker.
type Store struct {
	db *circuitbreaker.DB
	sb sq.StatementBuilderType
}

var (
	_ repository.TargetRepository  = (*Store)(nil)
	_ repository.MentionRepository = (*Store)(nil)
	_ repository.ErrorRepository   = (*Store)(nil)
)

// NewStore creates a Store.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db: circuitbreaker.NewDB(db),
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// ListStale implements repository.TargetRepository.
func (s *Store) ListStale(ctx context.Context, q entity.StalenessQuery) (targets []entity.Target, err error) {
	defer record("list_stale", time.Now(), &err)
	if err := q.Validate(); err != nil {
		return nil, err
	}
	c := q.Collection
	if err := checkIdentifiers(c.Table, c.IDColumn, c.ReferenceColumn, q.Field.ScrapedAtColumn); err != nil {
		return nil, err
	}

	sel := s.sb.
		Select(c.IDColumn, c.ReferenceColumn+"::text").
		From(c.Table).
		OrderBy(q.Field.ScrapedAtColumn + " ASC NULLS FIRST").
		Limit(uint64(q.Limit))
	for _, f := range q.Filters {
		if err := checkIdentifiers(f.Column); err != nil {
			return nil, err
		}
		switch f.Op {
		case entity.OpEq:
			sel = sel.Where(sq.Eq{f.Column: f.Value})
		case entity.OpNotIsNull:
			sel = sel.Where(sq.NotEq{f.Column: nil})
		}
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("ListStale: build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListStale %s: %w", c.Table, err)
	}
	defer func() { _ = rows.Close() }()

	targets = make([]entity.Target, 0, q.Limit)
	for rows.Next() {
		var t entity.Target
		var ref sql.NullString
		if err := rows.Scan(&t.ID, &ref); err != nil {
			return nil, fmt.Errorf("ListStale %s: scan: %w", c.Table, err)
		}
		t.Reference = ref.String
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListStale %s: %w", c.Table, err)
	}
	return targets, nil
}

// Patch implements repository.TargetRepository.
func (s *Store) Patch(ctx context.Context, c entity.Collection, id uuid.UUID, fields map[string]any) (err error) {
	defer record("patch", time.Now(), &err)
	if len(fields) == 0 {
		return nil
	}
	if err := checkIdentifiers(c.Table, c.IDColumn); err != nil {
		return err
	}
	values, err := columnValues(fields)
	if err != nil {
		return err
	}

	query, args, err := s.sb.Update(c.Table).SetMap(values).Where(sq.Eq{c.IDColumn: id}).ToSql()
	if err != nil {
		return fmt.Errorf("Patch: build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("Patch %s %s: %w", c.Table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Patch %s %s: %w", c.Table, id, err)
	}
	if n == 0 {
		return fmt.Errorf("Patch %s %s: %w", c.Table, id, entity.ErrNotFound)
	}
	return nil
}

// Upsert implements repository.MentionRepository.
func (s *Store) Upsert(ctx context.Context, m *entity.MentionRecord, conflictColumns []string) (id uuid.UUID, err error) {
	defer record("upsert_mention", time.Now(), &err)
	if len(conflictColumns) == 0 {
		return uuid.Nil, fmt.Errorf("Upsert: %w: no conflict columns", entity.ErrInvalidInput)
	}
	if err := checkIdentifiers(conflictColumns...); err != nil {
		return uuid.Nil, err
	}
	values, err := columnValues(m.Columns())
	if err != nil {
		return uuid.Nil, err
	}

	updates := make([]string, 0, len(values))
	for _, col := range sortedKeys(values) {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	suffix := fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s RETURNING id",
		strings.Join(conflictColumns, ", "), strings.Join(updates, ", "))

	query, args, err := s.sb.Insert(entity.Mentions.Table).SetMap(values).Suffix(suffix).ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("Upsert: build query: %w", err)
	}
	if err := s.db.ScanRow(ctx, query, args, &id); err != nil {
		return uuid.Nil, fmt.Errorf("Upsert mention: %w", err)
	}
	return id, nil
}

// FindIDByDOI implements repository.MentionRepository.
func (s *Store) FindIDByDOI(ctx context.Context, doi string) (id uuid.UUID, err error) {
	defer record("find_mention", time.Now(), &err)
	query, args, err := s.sb.
		Select("id").
		From(entity.Mentions.Table).
		Where(sq.Eq{"doi": doi}).
		Limit(1).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("FindIDByDOI: build query: %w", err)
	}
	err = s.db.ScanRow(ctx, query, args, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("mention with doi %s: %w", doi, entity.ErrNotFound)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("FindIDByDOI: %w", err)
	}
	return id, nil
}

// LinkCitations implements repository.MentionRepository.
func (s *Store) LinkCitations(ctx context.Context, referencePaper uuid.UUID, citations []uuid.UUID) (err error) {
	defer record("link_citations", time.Now(), &err)
	if len(citations) == 0 {
		return nil
	}

	ins := s.sb.Insert("citation_for_mention").Columns("mention", "citation")
	for _, c := range citations {
		ins = ins.Values(referencePaper, c)
	}
	query, args, err := ins.Suffix("ON CONFLICT (mention, citation) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("LinkCitations: build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("LinkCitations %s: %w", referencePaper, err)
	}
	return nil
}

// Append implements repository.ErrorRepository.
func (s *Store) Append(ctx context.Context, rec *entity.ErrorRecord) (err error) {
	defer record("append_error", time.Now(), &err)
	query, args, err := s.sb.
		Insert("backend_log").
		Columns("service_name", "table_name", "reference_id", "message", "stack_trace", "created_at").
		Values(rec.ServiceName, rec.TableName, rec.ReferenceID, rec.Message, rec.StackTrace, rec.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("Append: build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("Append backend_log: %w", err)
	}
	return nil
}

func record(op string, start time.Time, err *error) {
	metrics.RecordStoreRequest(backendName, op, time.Since(start), *err)
}

// checkIdentifiers rejects names that cannot be interpolated into SQL as is.
func checkIdentifiers(names ...string) error {
	for _, n := range names {
		if !identifierPattern.MatchString(n) {
			return &entity.ValidationError{Field: "identifier", Message: fmt.Sprintf("invalid SQL identifier %q", n)}
		}
	}
	return nil
}

// columnValues converts payload columns to driver values. Maps are stored as
// jsonb.
func columnValues(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for col, v := range fields {
		if err := checkIdentifiers(col); err != nil {
			return nil, err
		}
		switch v.(type) {
		case map[string]float64, map[string]int64, map[string]any:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", col, err)
			}
			out[col] = string(b)
		default:
			out[col] = v
		}
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
