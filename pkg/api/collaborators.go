package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ScanResult is the outcome of one site scan
type ScanResult struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Score       int       `json:"score"`
	IssuesFound int       `json:"issues_found"`
	Issues      []string  `json:"issues,omitempty"`
	ScannedAt   time.Time `json:"scanned_at"`
}

// Scanner checks a site. It is called once per metered scan request.
type Scanner interface {
	Scan(ctx context.Context, target string) (*ScanResult, error)
}

// Page is one generated landing page
type Page struct {
	ID      string `json:"id"`
	Keyword string `json:"keyword"`
	Title   string `json:"title"`
	Slug    string `json:"slug"`
	URL     string `json:"url,omitempty"`
}

// PageGenerator produces a page for a keyword
type PageGenerator interface {
	Generate(ctx context.Context, keyword string) (*Page, error)
}

const maxScanBody = 2 << 20

// HTTPScanner fetches a page and runs basic on-page checks against it
type HTTPScanner struct {
	client *http.Client
}

// NewHTTPScanner creates a scanner with the given fetch timeout
func NewHTTPScanner(timeout time.Duration) *HTTPScanner {
	return &HTTPScanner{client: &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}}
}

// Scan fetches target and scores it out of 100, losing 20 points per issue
func (s *HTTPScanner) Scan(ctx context.Context, target string) (*ScanResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build scan request: %w", err)
	}
	req.Header.Set("User-Agent", "Lumen-Scanner/1.0")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScanBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", target, err)
	}
	page := strings.ToLower(string(body))

	var issues []string
	if resp.StatusCode >= 400 {
		issues = append(issues, fmt.Sprintf("page returned HTTP %d", resp.StatusCode))
	}
	if !strings.Contains(page, "<title>") && !strings.Contains(page, "<title ") {
		issues = append(issues, "missing <title>")
	}
	if !strings.Contains(page, `name="description"`) {
		issues = append(issues, "missing meta description")
	}
	if !strings.Contains(page, "<h1") {
		issues = append(issues, "missing <h1>")
	}
	if time.Since(start) > 3*time.Second {
		issues = append(issues, "slow response")
	}

	score := 100 - 20*len(issues)
	if score < 0 {
		score = 0
	}
	return &ScanResult{
		ID:          uuid.NewString(),
		URL:         target,
		Score:       score,
		IssuesFound: len(issues),
		Issues:      issues,
		ScannedAt:   time.Now().UTC(),
	}, nil
}

// TemplateGenerator builds pages from the keyword alone, under BaseURL
type TemplateGenerator struct {
	BaseURL string
}

// Generate titles and slugs the keyword
func (g TemplateGenerator) Generate(_ context.Context, keyword string) (*Page, error) {
	slug := slugify(keyword)
	if slug == "" {
		return nil, fmt.Errorf("keyword %q has no usable characters", keyword)
	}
	p := &Page{
		ID:      uuid.NewString(),
		Keyword: keyword,
		Title:   titleCase(keyword),
		Slug:    slug,
	}
	if g.BaseURL != "" {
		p.URL = strings.TrimRight(g.BaseURL, "/") + "/" + url.PathEscape(slug)
	}
	return p, nil
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
