package webhooks

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/lumen/pkg/contextkeys"
	"github.com/platinummonkey/lumen/pkg/httputil"
	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/platinummonkey/lumen/pkg/ratelimit"
	"github.com/sirupsen/logrus"
)

// Handlers provides HTTP handlers for webhook management. Every route is
// scoped to the organization the authentication middleware put in the
// request context.
type Handlers struct {
	registry    *Registry
	dispatcher  *Dispatcher
	testLimiter ratelimit.Checker
	logger      logrus.FieldLogger
}

// NewHandlers creates webhook handlers. testLimiter, if set, bounds test
// sends per organization.
func NewHandlers(registry *Registry, dispatcher *Dispatcher, testLimiter ratelimit.Checker, logger logrus.FieldLogger) *Handlers {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handlers{
		registry:    registry,
		dispatcher:  dispatcher,
		testLimiter: testLimiter,
		logger:      logger,
	}
}

// RegisterRoutes registers webhook routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks", h.createWebhook).Methods("POST")
	router.HandleFunc("/webhooks", h.listWebhooks).Methods("GET")
	router.HandleFunc("/webhooks/{id}", h.getWebhook).Methods("GET")
	router.HandleFunc("/webhooks/{id}", h.deleteWebhook).Methods("DELETE")
	router.HandleFunc("/webhooks/{id}/test", h.testWebhook).Methods("POST")
	router.HandleFunc("/webhooks/{id}/activate", h.activateWebhook).Methods("POST")
	router.HandleFunc("/webhooks/{id}/deactivate", h.deactivateWebhook).Methods("POST")
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteAPIError(w, observability.LoggerFromContext(r.Context(), h.logger), err)
}

// orgAndID reads the caller's org and the {id} path variable
func (h *Handlers) orgAndID(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	orgID := contextkeys.GetOrgID(r.Context())
	if orgID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return "", "", false
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return "", "", false
	}
	return orgID, id, true
}

// createWebhook handles POST /webhooks
func (h *Handlers) createWebhook(w http.ResponseWriter, r *http.Request) {
	orgID := contextkeys.GetOrgID(r.Context())
	if orgID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	created, err := h.registry.Create(r.Context(), orgID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, created)
}

// listWebhooks handles GET /webhooks
func (h *Handlers) listWebhooks(w http.ResponseWriter, r *http.Request) {
	orgID := contextkeys.GetOrgID(r.Context())
	if orgID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	views, err := h.registry.List(r.Context(), orgID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"webhooks": views})
}

// getWebhook handles GET /webhooks/{id}
func (h *Handlers) getWebhook(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.orgAndID(w, r)
	if !ok {
		return
	}

	hook, err := h.registry.Get(r.Context(), orgID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, hook.View())
}

// deleteWebhook handles DELETE /webhooks/{id}
func (h *Handlers) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.orgAndID(w, r)
	if !ok {
		return
	}

	if err := h.registry.Delete(r.Context(), orgID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// testWebhook handles POST /webhooks/{id}/test
func (h *Handlers) testWebhook(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.orgAndID(w, r)
	if !ok {
		return
	}

	if h.testLimiter != nil {
		res, err := h.testLimiter.Allow(r.Context(), orgID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := res.Err(h.testLimiter.Config().Name, orgID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	attempt, err := h.dispatcher.SendTest(r.Context(), orgID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{
		"success":  attempt.Success(),
		"delivery": attempt,
	})
}

// activateWebhook handles POST /webhooks/{id}/activate
func (h *Handlers) activateWebhook(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.orgAndID(w, r)
	if !ok {
		return
	}

	hook, err := h.registry.Activate(r.Context(), orgID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, hook.View())
}

// deactivateWebhook handles POST /webhooks/{id}/deactivate
func (h *Handlers) deactivateWebhook(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.orgAndID(w, r)
	if !ok {
		return
	}

	hook, err := h.registry.Deactivate(r.Context(), orgID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, hook.View())
}
