package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/lumen/pkg/contextkeys"
	"github.com/platinummonkey/lumen/pkg/httputil"
	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/platinummonkey/lumen/pkg/orgs"
	"github.com/platinummonkey/lumen/pkg/quota"
	"github.com/platinummonkey/lumen/pkg/usage"
	"github.com/sirupsen/logrus"
)

// UsageReport is the body of GET /usage
type UsageReport struct {
	Period    usage.Period          `json:"period"`
	Plan      orgs.PlanTier         `json:"plan"`
	Resources []usage.ResourceUsage `json:"resources"`
}

// UsageHandlers reports an organization's consumption against its plan
type UsageHandlers struct {
	accountant *usage.Accountant
	directory  orgs.Directory
	enforcer   *quota.Enforcer
	logger     logrus.FieldLogger
}

// NewUsageHandlers creates usage handlers. The enforcer supplies the current
// period so reports and reservations agree on the clock.
func NewUsageHandlers(accountant *usage.Accountant, directory orgs.Directory, enforcer *quota.Enforcer, logger logrus.FieldLogger) *UsageHandlers {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &UsageHandlers{accountant: accountant, directory: directory, enforcer: enforcer, logger: logger}
}

// RegisterRoutes registers usage routes
func (h *UsageHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/usage", h.getUsage).Methods("GET")
}

// getUsage handles GET /usage?period=YYYY-MM
func (h *UsageHandlers) getUsage(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)
	orgID := contextkeys.GetOrgID(r.Context())
	if orgID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	period := h.enforcer.CurrentPeriod()
	if raw := httputil.ParseQueryString(r, "period", ""); raw != "" {
		p, err := usage.ParsePeriod(raw)
		if err != nil {
			httputil.WriteBadRequest(w, "period must be YYYY-MM")
			return
		}
		period = p
	}

	plan, err := h.directory.GetPlan(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, orgs.ErrOrgNotFound) {
			httputil.WriteAPIError(w, logger, httputil.NewStatusError(http.StatusNotFound, "organization not found"))
			return
		}
		httputil.WriteAPIError(w, logger, &quota.ConfigurationError{Op: "get plan", Err: err})
		return
	}
	limits, err := h.directory.GetPlanLimits(r.Context(), plan)
	if err != nil {
		httputil.WriteAPIError(w, logger, &quota.ConfigurationError{Op: "get plan limits", Err: err})
		return
	}

	resources, err := h.accountant.Summary(r.Context(), orgID, period, limits.Caps)
	if err != nil {
		httputil.WriteAPIError(w, logger, &quota.ConfigurationError{Op: "read usage", Err: err})
		return
	}

	httputil.WriteSuccess(w, UsageReport{Period: period, Plan: plan, Resources: resources})
}
