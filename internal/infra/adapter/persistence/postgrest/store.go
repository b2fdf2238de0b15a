// Package postgrest implements the store interfaces against the PostgREST API
// in front of the RSD database.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/infra/auth"
	"rsd-scraper/internal/observability/metrics"
	"rsd-scraper/internal/repository"
	"rsd-scraper/internal/resilience/circuitbreaker"
	"rsd-scraper/internal/resilience/retry"

	"github.com/google/uuid"
)

const (
	backendName = "postgrest"

	maxBodySize  = 10 * 1024 * 1024 // 10MB
	maxErrorBody = 512
)

// Prefer header values.
const (
	preferMerge  = "resolution=merge-duplicates,return=representation"
	preferIgnore = "resolution=ignore-duplicates,return=minimal"
	preferRows   = "return=representation"
	preferNone   = "return=minimal"
)

// Store implements repository.TargetRepository, repository.MentionRepository
// and repository.ErrorRepository over HTTP.
type Store struct {
	baseURL string
	client  *http.Client
	tokens  auth.TokenSource
	breaker *circuitbreaker.Breaker
}

var (
	_ repository.TargetRepository  = (*Store)(nil)
	_ repository.MentionRepository = (*Store)(nil)
	_ repository.ErrorRepository   = (*Store)(nil)
)

// NewStore creates a Store for the PostgREST API at baseURL. A nil tokens
// sends unauthenticated requests.
func NewStore(baseURL string, client *http.Client, tokens auth.TokenSource) *Store {
	if tokens == nil {
		tokens = auth.StaticToken("")
	}
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		tokens:  tokens,
		breaker: circuitbreaker.New(circuitbreaker.StoreConfig(backendName, breakerSuccess)),
	}
}

// breakerSuccess counts only transport failures and 5xx answers against the
// breaker.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if code, ok := retry.StatusCode(err); ok {
		return code < 500
	}
	return false
}

type targetRow struct {
	ID        uuid.UUID `json:"id"`
	Reference *string   `json:"reference"`
}

type idRow struct {
	ID uuid.UUID `json:"id"`
}

// ListStale implements repository.TargetRepository.
func (s *Store) ListStale(ctx context.Context, q entity.StalenessQuery) (targets []entity.Target, err error) {
	defer record("list_stale", time.Now(), &err)
	if err := q.Validate(); err != nil {
		return nil, err
	}
	c := q.Collection

	params := url.Values{}
	params.Set("select", fmt.Sprintf("id:%s,reference:%s", c.IDColumn, c.ReferenceColumn))
	for _, f := range q.Filters {
		switch f.Op {
		case entity.OpEq:
			params.Add(f.Column, "eq."+f.Value)
		case entity.OpNotIsNull:
			params.Add(f.Column, "not.is.null")
		}
	}
	params.Set("order", q.Field.ScrapedAtColumn+".asc.nullsfirst")
	params.Set("limit", fmt.Sprint(q.Limit))

	var rows []targetRow
	if err := s.do(ctx, http.MethodGet, c.Table, params, nil, "", &rows); err != nil {
		return nil, err
	}
	targets = make([]entity.Target, 0, len(rows))
	for _, r := range rows {
		t := entity.Target{ID: r.ID}
		if r.Reference != nil {
			t.Reference = *r.Reference
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// Patch implements repository.TargetRepository. The updated row is requested
// back so a missing row can be reported as entity.ErrNotFound.
func (s *Store) Patch(ctx context.Context, c entity.Collection, id uuid.UUID, fields map[string]any) (err error) {
	defer record("patch", time.Now(), &err)
	if len(fields) == 0 {
		return nil
	}
	params := url.Values{}
	params.Set(c.IDColumn, "eq."+id.String())
	params.Set("select", c.IDColumn)

	var rows []map[string]any
	if err := s.do(ctx, http.MethodPatch, c.Table, params, fields, preferRows, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("patch %s %s: %w", c.Table, id, entity.ErrNotFound)
	}
	return nil
}

// Upsert implements repository.MentionRepository.
func (s *Store) Upsert(ctx context.Context, m *entity.MentionRecord, conflictColumns []string) (id uuid.UUID, err error) {
	defer record("upsert_mention", time.Now(), &err)
	if len(conflictColumns) == 0 {
		return uuid.Nil, fmt.Errorf("upsert mention: %w: no conflict columns", entity.ErrInvalidInput)
	}
	params := url.Values{}
	params.Set("on_conflict", strings.Join(conflictColumns, ","))
	params.Set("select", "id")

	var rows []idRow
	if err := s.do(ctx, http.MethodPost, entity.Mentions.Table, params, m.Columns(), preferMerge, &rows); err != nil {
		return uuid.Nil, err
	}
	if len(rows) == 0 {
		return uuid.Nil, errors.New("upsert mention: empty representation")
	}
	return rows[0].ID, nil
}

// FindIDByDOI implements repository.MentionRepository. The DOI is compared
// exactly; callers pass the value read from the row.
func (s *Store) FindIDByDOI(ctx context.Context, doi string) (id uuid.UUID, err error) {
	defer record("find_mention", time.Now(), &err)
	params := url.Values{}
	params.Set("select", "id")
	params.Set("doi", "eq."+doi)
	params.Set("limit", "1")

	var rows []idRow
	if err := s.do(ctx, http.MethodGet, entity.Mentions.Table, params, nil, "", &rows); err != nil {
		return uuid.Nil, err
	}
	if len(rows) == 0 {
		return uuid.Nil, fmt.Errorf("mention with doi %s: %w", doi, entity.ErrNotFound)
	}
	return rows[0].ID, nil
}

type citationLink struct {
	Mention  uuid.UUID `json:"mention"`
	Citation uuid.UUID `json:"citation"`
}

// LinkCitations implements repository.MentionRepository.
func (s *Store) LinkCitations(ctx context.Context, referencePaper uuid.UUID, citations []uuid.UUID) (err error) {
	defer record("link_citations", time.Now(), &err)
	if len(citations) == 0 {
		return nil
	}
	links := make([]citationLink, 0, len(citations))
	for _, c := range citations {
		links = append(links, citationLink{Mention: referencePaper, Citation: c})
	}
	params := url.Values{}
	params.Set("on_conflict", "mention,citation")
	return s.do(ctx, http.MethodPost, "citation_for_mention", params, links, preferIgnore, nil)
}

// Append implements repository.ErrorRepository.
func (s *Store) Append(ctx context.Context, rec *entity.ErrorRecord) (err error) {
	defer record("append_error", time.Now(), &err)
	return s.do(ctx, http.MethodPost, "backend_log", nil, rec, preferNone, nil)
}

// do sends one request and decodes a 2xx body into out when out is non-nil.
// Non-2xx answers are returned as *retry.HTTPError.
func (s *Store) do(ctx context.Context, method, table string, params url.Values, body any, prefer string, out any) error {
	endpoint := s.baseURL + "/" + table
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, table, err)
		}
		payload = b
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, table, err)
	}

	err = s.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if prefer != "" {
			req.Header.Set("Prefer", prefer)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := strings.TrimSpace(string(data))
			if len(msg) > maxErrorBody {
				msg = msg[:maxErrorBody]
			}
			return &retry.HTTPError{StatusCode: resp.StatusCode, Message: msg}
		}
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, table, err)
	}
	return nil
}

func record(op string, start time.Time, err *error) {
	metrics.RecordStoreRequest(backendName, op, time.Since(start), *err)
}
