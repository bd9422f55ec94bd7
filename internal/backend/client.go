/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"reportdesigner/internal/domain"
	applog "reportdesigner/internal/log"
)

// Defaults for NewClient.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultCacheTTL = 2 * time.Minute
)

var ErrUnauthorized = errors.New("backend rejected credentials")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("server %s %s: %s: %s", e.Method, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("server %s %s: %s", e.Method, e.Path, e.Status)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// Client calls the report-type template endpoints of the medical-center API.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
	cache   *gocache.Cache
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithCacheTTL sets how long loaded templates are reused. Zero or less disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.cache = nil
			return
		}
		c.cache = gocache.New(d, 2*d)
	}
}

// WithInsecureTLS skips certificate verification, for self-signed staging servers.
func WithInsecureTLS(insecure bool) Option {
	return func(c *Client) {
		if !insecure {
			return
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
		c.client.Transport = tr
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: DefaultTimeout},
		cache:   gocache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func templatePath(reportTypeID string) string {
	return "/api/report-types/" + url.PathEscape(reportTypeID) + "/template"
}

func cacheKey(reportTypeID string) string { return "template:" + reportTypeID }

const listCacheKey = "report-types"

// do sends body (if any) as JSON and decodes a 2xx response into dest (if any).
func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	l := applog.WithComponent("backend").With(slog.String("method", method), slog.String("path", path))
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		l.Warn("request failed", slog.Any("err", err))
		return err
	}
	defer resp.Body.Close()
	l.Debug("response", slog.Int("status", resp.StatusCode), slog.Duration("took", time.Since(start)))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Method: method, Path: u.Path, Code: resp.StatusCode, Status: resp.Status, Body: errorMessage(msg)}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, u.Path, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} bodies and falls back to trimmed text.
func errorMessage(b []byte) string {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &env) == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return strings.TrimSpace(string(b))
}

// LoadTemplate fetches the template of a report type. A 404 means the report type has
// no template yet and yields ok=false.
func (c *Client) LoadTemplate(ctx context.Context, reportTypeID string) (domain.TemplateDocument, bool, error) {
	if c.cache != nil {
		if v, found := c.cache.Get(cacheKey(reportTypeID)); found {
			return v.(domain.TemplateDocument).Clone(), true, nil
		}
	}
	var doc domain.TemplateDocument
	err := c.do(ctx, http.MethodGet, templatePath(reportTypeID), nil, &doc)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return domain.TemplateDocument{}, false, nil
	}
	if err != nil {
		return domain.TemplateDocument{}, false, err
	}
	doc = normalizeLoaded(doc)
	if c.cache != nil {
		c.cache.Set(cacheKey(reportTypeID), doc.Clone(), gocache.DefaultExpiration)
	}
	return doc, true, nil
}

// SaveTemplate replaces the template of a report type. Cached copies are dropped
// whether or not the request succeeds.
func (c *Client) SaveTemplate(ctx context.Context, reportTypeID string, doc domain.TemplateDocument) error {
	if err := domain.Validate(doc); err != nil {
		return err
	}
	doc = normalizeLoaded(doc.Clone())
	if c.cache != nil {
		c.cache.Delete(cacheKey(reportTypeID))
		c.cache.Delete(listCacheKey)
	}
	return c.do(ctx, http.MethodPut, templatePath(reportTypeID), doc, nil)
}

// ListReportTypes returns the report types known to the API.
func (c *Client) ListReportTypes(ctx context.Context) ([]ReportType, error) {
	if c.cache != nil {
		if v, found := c.cache.Get(listCacheKey); found {
			return append([]ReportType(nil), v.([]ReportType)...), nil
		}
	}
	var list []ReportType
	if err := c.do(ctx, http.MethodGet, "/api/report-types", nil, &list); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(listCacheKey, append([]ReportType(nil), list...), gocache.DefaultExpiration)
	}
	return list, nil
}

// Invalidate drops every cached response.
func (c *Client) Invalidate() {
	if c.cache != nil {
		c.cache.Flush()
	}
}
