// Package jsonapi is a configurable source adapter for job boards that answer a GET
// request with JSON. The endpoint is a URL template; the response is navigated to a
// list of postings and each posting is mapped onto record.Raw.
package jsonapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
	"github.com/kailas-cloud/jobfed/internal/logger"
)

const maxBody = 10 << 20

var timeType = reflect.TypeOf(time.Time{})

// timeLayouts are tried in order for string timestamps. Zone-less layouts read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// Record fields a mapping can target.
var recordFields = []string{"id", "title", "company", "location", "description", "url", "posted_at", "salary", "remote", "tags"}

// Config describes one JSON source.
type Config struct {
	ID string
	// Endpoint may contain {query}, {location}, {page}, {limit} and {remote}.
	Endpoint string
	// ResultsPath is the dotted path to the posting list; empty means the body is the list.
	ResultsPath string
	// Fields maps record fields to dotted keys inside a posting; unmapped fields use their own name.
	Fields     map[string]string
	Headers    map[string]string
	MaxResults int
	UserAgent  string
}

// Adapter implements source.Fetcher.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New validates the mapping and creates an adapter. A nil client uses http.DefaultClient;
// call timeouts come from the caller's context.
func New(cfg Config, client *http.Client, l *zap.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("source %s: endpoint is required", cfg.ID)
	}
	for field := range cfg.Fields {
		if !known(field) {
			return nil, fmt.Errorf("source %s: unknown record field %q in mapping", cfg.ID, field)
		}
	}
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "jobfed"
	}
	return &Adapter{cfg: cfg, client: client, logger: logger.OrNop(l).With(logger.Source(cfg.ID))}, nil
}

// Fetch runs one query. Transport failures and non-200 answers are errors; a body that
// does not parse yields no records.
func (a *Adapter) Fetch(ctx context.Context, q query.Spec) ([]record.Raw, error) {
	endpoint := a.buildURL(q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.cfg.UserAgent)
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", redact(endpoint), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("GET %s: unexpected status %d", redact(endpoint), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		a.logger.Warn("Malformed source payload", zap.Error(err))
		return []record.Raw{}, nil
	}

	items, ok := lookup(doc, a.cfg.ResultsPath).([]any)
	if !ok {
		a.logger.Warn("Source payload has no result list", zap.String("path", a.cfg.ResultsPath))
		return []record.Raw{}, nil
	}

	limit := a.cfg.MaxResults
	if q.Limit > 0 && (limit == 0 || q.Limit < limit) {
		limit = q.Limit
	}

	out := make([]record.Raw, 0, len(items))
	for i, it := range items {
		if limit > 0 && len(out) >= limit {
			break
		}
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		r, err := a.decode(obj)
		if err != nil {
			a.logger.Debug("Skipping undecodable posting", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// posting is the weakly typed intermediate a JSON object decodes into.
type posting struct {
	ID          string     `mapstructure:"id"`
	Title       string     `mapstructure:"title"`
	Company     string     `mapstructure:"company"`
	Location    string     `mapstructure:"location"`
	Description string     `mapstructure:"description"`
	URL         string     `mapstructure:"url"`
	PostedAt    *time.Time `mapstructure:"posted_at"`
	Salary      string     `mapstructure:"salary"`
	Remote      *bool      `mapstructure:"remote"`
	Tags        []string   `mapstructure:"tags"`
}

func (a *Adapter) decode(obj map[string]any) (record.Raw, error) {
	flat := make(map[string]any, len(recordFields))
	for _, field := range recordFields {
		key := field
		if k, ok := a.cfg.Fields[field]; ok && k != "" {
			key = k
		}
		if v := lookup(obj, key); v != nil {
			flat[field] = v
		}
	}

	// A timestamp no layout fits only loses the date, not the posting.
	if s, ok := flat["posted_at"].(string); ok {
		if t, ok := parseTime(s); ok {
			flat["posted_at"] = t
		} else {
			delete(flat, "posted_at")
			a.logger.Debug("Ignoring unparseable posted_at", zap.String("value", s))
		}
	}

	var p posting
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
		DecodeHook:       epochToTimeHook,
	})
	if err != nil {
		return record.Raw{}, fmt.Errorf("decoder: %w", err)
	}
	if err := dec.Decode(flat); err != nil {
		return record.Raw{}, err
	}

	return record.Raw{
		ID:          p.ID,
		Title:       p.Title,
		Company:     p.Company,
		Location:    p.Location,
		Description: p.Description,
		URL:         p.URL,
		Source:      a.cfg.ID,
		PostedAt:    p.PostedAt,
		Salary:      p.Salary,
		Remote:      p.Remote,
		Tags:        p.Tags,
	}, nil
}

func (a *Adapter) buildURL(q query.Spec) string {
	limit := q.Limit
	if a.cfg.MaxResults > 0 && (limit == 0 || limit > a.cfg.MaxResults) {
		limit = a.cfg.MaxResults
	}
	return strings.NewReplacer(
		"{query}", url.QueryEscape(q.Text()),
		"{location}", url.QueryEscape(q.Location),
		"{page}", strconv.Itoa(max(q.Page, 1)),
		"{limit}", strconv.Itoa(limit),
		"{remote}", strconv.FormatBool(q.RemoteOnly),
	).Replace(a.cfg.Endpoint)
}

// lookup walks a dotted path through nested objects; numeric parts index arrays.
// An empty path returns v.
func lookup(v any, path string) any {
	if path == "" {
		return v
	}
	for _, part := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			v = node[part]
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			v = node[i]
		default:
			return nil
		}
	}
	return v
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// epochToTimeHook accepts unix seconds for time fields.
func epochToTimeHook(_, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	if f, ok := data.(float64); ok {
		return time.Unix(int64(f), 0).UTC(), nil
	}
	return data, nil
}

func known(field string) bool {
	for _, f := range recordFields {
		if f == field {
			return true
		}
	}
	return false
}

// redact drops the query string, which may carry API keys.
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
