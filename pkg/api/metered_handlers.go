package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/lumen/pkg/async"
	"github.com/platinummonkey/lumen/pkg/contextkeys"
	"github.com/platinummonkey/lumen/pkg/httputil"
	"github.com/platinummonkey/lumen/pkg/middleware"
	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/platinummonkey/lumen/pkg/quota"
	"github.com/platinummonkey/lumen/pkg/ratelimit"
	"github.com/platinummonkey/lumen/pkg/usage"
	"github.com/platinummonkey/lumen/pkg/webhooks"
	"github.com/sirupsen/logrus"
)

const (
	// MaxKeywordsPerRequest bounds one page generation request
	MaxKeywordsPerRequest = 50
	maxKeywordLength      = 200
	generateConcurrency   = 4
)

var (
	errScanFailed       = httputil.NewStatusError(http.StatusBadGateway, "scan failed")
	errGenerationFailed = httputil.NewStatusError(http.StatusBadGateway, "page generation failed")
)

// EventSink receives the events metered operations emit. Delivery must not
// block the request.
type EventSink interface {
	Deliver(ctx context.Context, orgID string, p webhooks.Payload)
}

// MeteredHandlers serves the operations that consume plan quota
type MeteredHandlers struct {
	enforcer  *quota.Enforcer
	quota     *middleware.QuotaMiddleware
	limiters  *ratelimit.Registry
	metrics   *observability.Metrics
	events    EventSink
	scanner   Scanner
	generator PageGenerator
	logger    logrus.FieldLogger
}

// ScanRequest is the body of POST /scans
type ScanRequest struct {
	URL string `json:"url"`
}

// ScanResponse is returned by POST /scans
type ScanResponse struct {
	Scan  *ScanResult     `json:"scan"`
	Usage *quota.Decision `json:"usage,omitempty"`
}

// GenerateRequest is the body of POST /pages/generate
type GenerateRequest struct {
	Keywords []string `json:"keywords"`
}

// FailedKeyword is a keyword whose page could not be generated. Its unit
// is given back.
type FailedKeyword struct {
	Keyword string `json:"keyword"`
	Error   string `json:"error"`
}

// GenerateResponse is returned by POST /pages/generate
type GenerateResponse struct {
	Pages   []*Page         `json:"pages"`
	Failed  []FailedKeyword `json:"failed,omitempty"`
	Charged int64           `json:"charged"`
	Usage   *quota.Decision `json:"usage,omitempty"`
}

// NewMeteredHandlers creates handlers for /scans and /pages/generate
func NewMeteredHandlers(enforcer *quota.Enforcer, limiters *ratelimit.Registry, events EventSink, scanner Scanner, generator PageGenerator, metrics *observability.Metrics, logger logrus.FieldLogger) *MeteredHandlers {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MeteredHandlers{
		enforcer:  enforcer,
		quota:     middleware.NewQuotaMiddleware(enforcer, logger),
		limiters:  limiters,
		metrics:   metrics,
		events:    events,
		scanner:   scanner,
		generator: generator,
		logger:    logger,
	}
}

// RegisterRoutes registers metered routes. Both are limited per
// organization before any quota is reserved.
func (h *MeteredHandlers) RegisterRoutes(router *mux.Router) {
	scanLimit := middleware.NewRateLimitMiddleware(h.limiters.MustGet(ratelimit.BulkScan), middleware.ByOrg, h.metrics, h.logger)
	pageLimit := middleware.NewRateLimitMiddleware(h.limiters.MustGet(ratelimit.PageGeneration), middleware.ByOrg, h.metrics, h.logger)

	scans := httputil.Chain(
		scanLimit.Handler,
		h.quota.Reserve(usage.Checks, middleware.Fixed(1)),
	)(http.HandlerFunc(h.createScan))
	router.Handle("/scans", scans).Methods("POST")

	router.Handle("/pages/generate", pageLimit.Handler(http.HandlerFunc(h.generatePages))).Methods("POST")
}

// createScan handles POST /scans. One checks unit is already reserved when
// it runs; any error response gives it back.
func (h *MeteredHandlers) createScan(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)
	orgID := contextkeys.GetOrgID(r.Context())

	var req ScanRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := webhooks.ValidateURL(req.URL); err != nil {
		httputil.WriteAPIError(w, logger, err)
		return
	}

	result, err := h.scanner.Scan(r.Context(), req.URL)
	if err != nil {
		logger.WithError(err).WithField("url", req.URL).Warn("Scan failed")
		httputil.WriteAPIError(w, logger, errScanFailed)
		return
	}

	h.events.Deliver(r.Context(), orgID, webhooks.ScanComplete{
		ScanID:      result.ID,
		URL:         result.URL,
		Score:       result.Score,
		IssuesFound: result.IssuesFound,
	})

	httputil.WriteCreated(w, ScanResponse{Scan: result, Usage: middleware.DecisionFromContext(r.Context())})
}

// generatePages handles POST /pages/generate. It reserves one pages unit
// per keyword up front, so a request either fits the quota as a whole or
// is refused. Units for keywords that fail to generate are given back.
func (h *MeteredHandlers) generatePages(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)
	orgID := contextkeys.GetOrgID(r.Context())
	if orgID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req GenerateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	keywords, err := normalizeKeywords(req.Keywords)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	resp := GenerateResponse{}
	d, err := h.enforcer.Guard(r.Context(), orgID, usage.Pages, int64(len(keywords)), func(ctx context.Context, d *quota.Decision) error {
		indexes := make([]int, len(keywords))
		for i := range indexes {
			indexes[i] = i
		}
		pages := make([]*Page, len(keywords))
		errs := async.Settle(ctx, indexes, generateConcurrency, func(ctx context.Context, i int) error {
			p, err := h.generator.Generate(ctx, keywords[i])
			if err != nil {
				return err
			}
			pages[i] = p
			return nil
		})

		for i, err := range errs {
			if err != nil {
				resp.Failed = append(resp.Failed, FailedKeyword{Keyword: keywords[i], Error: err.Error()})
				continue
			}
			resp.Pages = append(resp.Pages, pages[i])
		}
		if len(resp.Pages) == 0 {
			return fmt.Errorf("%w: %s", errGenerationFailed, resp.Failed[0].Error)
		}
		if failed := int64(len(resp.Failed)); failed > 0 {
			h.enforcer.Rollback(ctx, orgID, d.Period, usage.Pages, failed)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errGenerationFailed) {
			logger.WithError(err).WithField("keywords", len(keywords)).Warn("Page generation failed")
			httputil.WriteAPIError(w, logger, errGenerationFailed)
			return
		}
		httputil.WriteAPIError(w, logger, err)
		return
	}

	resp.Charged = int64(len(resp.Pages))
	usageAfter := *d
	usageAfter.Amount = resp.Charged
	usageAfter.CurrentUsage -= int64(len(resp.Failed))
	resp.Usage = &usageAfter

	for _, p := range resp.Pages {
		h.events.Deliver(r.Context(), orgID, webhooks.PageGenerated{
			PageID:  p.ID,
			Keyword: p.Keyword,
			Title:   p.Title,
			URL:     p.URL,
		})
	}

	httputil.WriteCreated(w, resp)
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// normalizeKeywords trims keywords and drops duplicates, keeping order
func normalizeKeywords(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("keywords must not be blank")
		}
		if utf8.RuneCountInString(k) > maxKeywordLength {
			return nil, fmt.Errorf("keyword %q is longer than %d characters", truncate(k, 20)+"...", maxKeywordLength)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one keyword is required")
	}
	if len(out) > MaxKeywordsPerRequest {
		return nil, fmt.Errorf("at most %d keywords per request", MaxKeywordsPerRequest)
	}
	return out, nil
}
