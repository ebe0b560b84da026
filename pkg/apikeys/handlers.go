package apikeys

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/lumen/pkg/contextkeys"
	"github.com/platinummonkey/lumen/pkg/httputil"
	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/platinummonkey/lumen/pkg/ratelimit"
	"github.com/sirupsen/logrus"
)

// Handlers provides HTTP handlers for API key management
type Handlers struct {
	service       *Service
	createLimiter ratelimit.Checker
	logger        logrus.FieldLogger
}

// NewHandlers creates API key handlers. createLimiter, if set, bounds key
// creation per organization.
func NewHandlers(service *Service, createLimiter ratelimit.Checker, logger logrus.FieldLogger) *Handlers {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handlers{service: service, createLimiter: createLimiter, logger: logger}
}

// RegisterRoutes registers API key routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api-keys", h.createKey).Methods("POST")
	router.HandleFunc("/api-keys", h.listKeys).Methods("GET")
	router.HandleFunc("/api-keys/{id}", h.revokeKey).Methods("DELETE")
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteAPIError(w, observability.LoggerFromContext(r.Context(), h.logger), err)
}

// createKey handles POST /api-keys
func (h *Handlers) createKey(w http.ResponseWriter, r *http.Request) {
	orgID := contextkeys.GetOrgID(r.Context())
	if orgID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	if h.createLimiter != nil {
		res, err := h.createLimiter.Allow(r.Context(), orgID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := res.Err(h.createLimiter.Config().Name, orgID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	var req CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), orgID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, created)
}

// listKeys handles GET /api-keys
func (h *Handlers) listKeys(w http.ResponseWriter, r *http.Request) {
	orgID := contextkeys.GetOrgID(r.Context())
	if orgID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	keys, err := h.service.List(r.Context(), orgID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"api_keys": keys})
}

// revokeKey handles DELETE /api-keys/{id}
func (h *Handlers) revokeKey(w http.ResponseWriter, r *http.Request) {
	orgID := contextkeys.GetOrgID(r.Context())
	if orgID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Revoke(r.Context(), orgID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
