// Package memory is an in-process store with the same ordering and conflict
// semantics as the PostgREST and postgres backends. It backs dry runs and
// end-to-end tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/observability/metrics"

	"github.com/google/uuid"
)

const backendName = "memory"

// Row is one stored row keyed by column name. Pointer values are stored
// dereferenced, nil pointers as nil.
type Row map[string]any

// Store implements repository.TargetRepository, repository.MentionRepository
// and repository.ErrorRepository.
type Store struct {
	mu        sync.RWMutex
	tables    map[string][]Row
	errorLog  []entity.ErrorRecord
	citations map[uuid.UUID]map[uuid.UUID]struct{}
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		tables:    make(map[string][]Row),
		citations: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// Insert adds a row to table as is.
func (s *Store) Insert(table string, row Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], normalizeRow(row))
}

// Rows returns copies of all rows of table in insertion order.
func (s *Store) Rows(table string) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// Row returns a copy of the row of c identified by id.
func (s *Store) Row(c entity.Collection, id uuid.UUID) (Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r := s.find(c.Table, c.IDColumn, id); r != nil {
		return copyRow(r), true
	}
	return nil, false
}

// ErrorRecords returns every appended error record.
func (s *Store) ErrorRecords() []entity.ErrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.ErrorRecord(nil), s.errorLog...)
}

// CitationsOf returns the mentions linked as citing referencePaper, sorted.
func (s *Store) CitationsOf(referencePaper uuid.UUID) []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(s.citations[referencePaper]))
	for id := range s.citations[referencePaper] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ListStale implements repository.TargetRepository.
func (s *Store) ListStale(ctx context.Context, q entity.StalenessQuery) (targets []entity.Target, err error) {
	defer record("list_stale", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Row, 0)
	for _, r := range s.tables[q.Collection.Table] {
		if matches(r, q.Filters) {
			matched = append(matched, r)
		}
	}

	col := q.Field.ScrapedAtColumn
	sort.SliceStable(matched, func(i, j int) bool {
		return nullsFirstBefore(matched[i][col], matched[j][col])
	})
	if len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	targets = make([]entity.Target, 0, len(matched))
	for _, r := range matched {
		id, ok := r[q.Collection.IDColumn].(uuid.UUID)
		if !ok {
			return nil, fmt.Errorf("row of %s has no uuid in %s", q.Collection.Table, q.Collection.IDColumn)
		}
		ref := ""
		if v := r[q.Collection.ReferenceColumn]; v != nil {
			ref = fmt.Sprint(v)
		}
		targets = append(targets, entity.Target{ID: id, Reference: ref})
	}
	return targets, nil
}

// Patch implements repository.TargetRepository.
func (s *Store) Patch(ctx context.Context, c entity.Collection, id uuid.UUID, fields map[string]any) (err error) {
	defer record("patch", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.find(c.Table, c.IDColumn, id)
	if r == nil {
		return fmt.Errorf("patch %s %s: %w", c.Table, id, entity.ErrNotFound)
	}
	for k, v := range fields {
		r[k] = normalize(v)
	}
	return nil
}

// Upsert implements repository.MentionRepository.
func (s *Store) Upsert(ctx context.Context, m *entity.MentionRecord, conflictColumns []string) (id uuid.UUID, err error) {
	defer record("upsert_mention", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	if len(conflictColumns) == 0 {
		return uuid.Nil, fmt.Errorf("upsert mention: %w: no conflict columns", entity.ErrInvalidInput)
	}

	incoming := normalizeRow(Row(m.Columns()))
	for _, col := range conflictColumns {
		if incoming[col] == nil {
			return uuid.Nil, &entity.ValidationError{Field: col, Message: "conflict column is null"}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table := entity.Mentions.Table
	for _, r := range s.tables[table] {
		if sameKey(r, incoming, conflictColumns) {
			for k, v := range incoming {
				r[k] = v
			}
			return r["id"].(uuid.UUID), nil
		}
	}

	id = uuid.New()
	incoming["id"] = id
	s.tables[table] = append(s.tables[table], incoming)
	return id, nil
}

// FindIDByDOI implements repository.MentionRepository. The DOI is compared
// exactly, as the unique doi column does.
func (s *Store) FindIDByDOI(ctx context.Context, doi string) (id uuid.UUID, err error) {
	defer record("find_mention", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.tables[entity.Mentions.Table] {
		if v, ok := r["doi"].(string); ok && v == doi {
			return r["id"].(uuid.UUID), nil
		}
	}
	return uuid.Nil, fmt.Errorf("mention with doi %s: %w", doi, entity.ErrNotFound)
}

// LinkCitations implements repository.MentionRepository. Existing links are
// left untouched.
func (s *Store) LinkCitations(ctx context.Context, referencePaper uuid.UUID, citations []uuid.UUID) (err error) {
	defer record("link_citations", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.citations[referencePaper]
	if !ok {
		set = make(map[uuid.UUID]struct{}, len(citations))
		s.citations[referencePaper] = set
	}
	for _, c := range citations {
		set[c] = struct{}{}
	}
	return nil
}

// Append implements repository.ErrorRepository.
func (s *Store) Append(ctx context.Context, rec *entity.ErrorRecord) (err error) {
	defer record("append_error", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorLog = append(s.errorLog, *rec)
	return nil
}

func (s *Store) find(table, idColumn string, id uuid.UUID) Row {
	for _, r := range s.tables[table] {
		if v, ok := r[idColumn].(uuid.UUID); ok && v == id {
			return r
		}
	}
	return nil
}

func record(op string, start time.Time, err *error) {
	metrics.RecordStoreRequest(backendName, op, time.Since(start), *err)
}

func matches(r Row, filters []entity.Filter) bool {
	for _, f := range filters {
		v := r[f.Column]
		switch f.Op {
		case entity.OpEq:
			if v == nil || fmt.Sprint(v) != f.Value {
				return false
			}
		case entity.OpNotIsNull:
			if v == nil {
				return false
			}
		}
	}
	return true
}

// nullsFirstBefore orders nil before any timestamp and timestamps ascending.
func nullsFirstBefore(a, b any) bool {
	ta, aok := a.(time.Time)
	tb, bok := b.(time.Time)
	switch {
	case !aok && !bok:
		return false
	case !aok:
		return true
	case !bok:
		return false
	default:
		return ta.Before(tb)
	}
}

func sameKey(existing, incoming Row, cols []string) bool {
	for _, c := range cols {
		ev, iv := existing[c], incoming[c]
		if ev == nil || iv == nil {
			return false
		}
		if ev != iv {
			return false
		}
	}
	return true
}

func normalizeRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = normalize(v)
	}
	return out
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func normalize(v any) any {
	switch x := v.(type) {
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *int:
		if x == nil {
			return nil
		}
		return *x
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *bool:
		if x == nil {
			return nil
		}
		return *x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case *uuid.UUID:
		if x == nil {
			return nil
		}
		return *x
	default:
		return v
	}
}
