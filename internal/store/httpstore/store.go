// Package httpstore talks to the school management app's REST API.
//
// Each kind maps to one collection:
//
//	student  GET/POST {base}/students      PATCH {base}/students/{id}
//	driver   GET/POST {base}/drivers       PATCH {base}/drivers/{id}
//	vehicle  GET/POST {base}/fleet/buses   PATCH {base}/fleet/buses/{id}
//
// Records travel as flat JSON objects with an "id" member. Failed calls
// return a *core.StoreError carrying the API's "error" message verbatim.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// DefaultTimeout bounds a single request when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a non-JSON error body ends up in a message.
const maxErrorBody = 512

var collections = map[core.Kind]string{
	core.KindStudent: "students",
	core.KindDriver:  "drivers",
	core.KindVehicle: "fleet/buses",
}

// Config configures a Store.
type Config struct {
	BaseURL string        // e.g. http://localhost:3000/api
	Token   string        // sent as a bearer token when set
	Timeout time.Duration // per request

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Store implements core.Store over HTTP.
type Store struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New validates cfg and returns a Store.
func New(cfg Config) (*Store, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse store base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("store base url %q: scheme must be http or https", cfg.BaseURL)
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Store{base: base, token: cfg.Token, http: client}, nil
}

// List returns every record of kind.
func (s *Store) List(ctx context.Context, kind core.Kind) ([]core.TargetRecord, error) {
	var raw []map[string]any
	if err := s.do(ctx, "list", kind, http.MethodGet, "", nil, &raw); err != nil {
		return nil, err
	}

	records := make([]core.TargetRecord, 0, len(raw))
	for _, obj := range raw {
		rec, ok := toRecord(obj)
		if !ok {
			slog.Warn("store record without id skipped", "kind", kind)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Create posts a new record and returns it as stored.
func (s *Store) Create(ctx context.Context, kind core.Kind, fields core.Fields) (core.TargetRecord, error) {
	return s.write(ctx, "create", kind, http.MethodPost, "", fields)
}

// Patch sends fields for the record with id.
func (s *Store) Patch(ctx context.Context, kind core.Kind, id string, fields core.Fields) (core.TargetRecord, error) {
	if id == "" {
		return core.TargetRecord{}, &core.StoreError{Op: "patch", Kind: kind, Message: "record id is required"}
	}
	return s.write(ctx, "patch", kind, http.MethodPatch, id, fields)
}

func (s *Store) write(ctx context.Context, op string, kind core.Kind, method, id string, fields core.Fields) (core.TargetRecord, error) {
	var obj map[string]any
	if err := s.do(ctx, op, kind, method, id, fields, &obj); err != nil {
		return core.TargetRecord{}, err
	}
	rec, ok := toRecord(obj)
	if !ok && op == "patch" {
		rec.ID = id
		ok = true
	}
	if !ok {
		return core.TargetRecord{}, &core.StoreError{Op: op, Kind: kind, Message: "response has no record id"}
	}
	return rec, nil
}

// do performs one request against the kind's collection (or one of its
// members when id is set) and decodes a successful JSON response into out.
func (s *Store) do(ctx context.Context, op string, kind core.Kind, method, id string, body, out any) error {
	endpoint, err := s.endpoint(kind, id)
	if err != nil {
		return &core.StoreError{Op: op, Kind: kind, Message: err.Error()}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &core.StoreError{Op: op, Kind: kind, Message: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &core.StoreError{Op: op, Kind: kind, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		return &core.StoreError{Op: op, Kind: kind, Transport: true, Err: err}
	}
	defer resp.Body.Close()

	slog.Debug("store request",
		"method", method,
		"url", endpoint,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &core.StoreError{Op: op, Kind: kind, Status: resp.StatusCode, Message: errorMessage(resp)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &core.StoreError{Op: op, Kind: kind, Transport: true, Err: err}
		}
		return &core.StoreError{Op: op, Kind: kind, Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

func (s *Store) endpoint(kind core.Kind, id string) (string, error) {
	collection, ok := collections[kind]
	if !ok {
		return "", fmt.Errorf("no collection for kind %q", kind)
	}
	u := s.base.JoinPath(collection)
	if id != "" {
		u = u.JoinPath(id)
	}
	return u.String(), nil
}

// errorMessage extracts the API's "error" member, falling back to the
// body text or the status line.
func errorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		switch {
		case payload.Error != "":
			return payload.Error
		case payload.Message != "":
			return payload.Message
		}
	}

	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// toRecord splits a JSON object into its id and remaining fields.
func toRecord(obj map[string]any) (core.TargetRecord, bool) {
	var id string
	switch v := obj["id"].(type) {
	case string:
		id = v
	case float64:
		id = fmt.Sprintf("%.0f", v)
	}
	if id == "" {
		return core.TargetRecord{}, false
	}

	fields := make(core.Fields, len(obj))
	for k, v := range obj {
		if k != "id" {
			fields[k] = v
		}
	}
	return core.TargetRecord{ID: id, Fields: fields}, true
}
