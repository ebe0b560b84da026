package apikeys

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/lumen/pkg/contextkeys"
	"github.com/platinummonkey/lumen/pkg/ratelimit"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(service *Service, limiter ratelimit.Checker) *mux.Router {
	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if org := r.Header.Get("X-Test-Org"); org != "" {
				r = r.WithContext(contextkeys.WithOrgID(r.Context(), org))
			}
			next.ServeHTTP(w, r)
		})
	})
	NewHandlers(service, limiter, logrus.New()).RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, path, orgID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if orgID != "" {
		req.Header.Set("X-Test-Org", orgID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_Lifecycle(t *testing.T) {
	service := NewService(NewMemoryStore(), 0, logrus.New())
	router := newTestRouter(service, nil)

	rec := do(router, "POST", "/api-keys", "org_1", `{"name":"CI"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID     string `json:"id"`
		Key    string `json:"key"`
		Prefix string `json:"prefix"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NoError(t, ValidateKeyFormat(created.Key))
	assert.NotContains(t, rec.Body.String(), "key_hash")

	rec = do(router, "GET", "/api-keys", "org_1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.Prefix)
	assert.NotContains(t, rec.Body.String(), created.Key)

	rec = do(router, "DELETE", "/api-keys/"+created.ID, "org_2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, "DELETE", "/api-keys/"+created.ID, "org_1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(router, "GET", "/api-keys", "org_1", "")
	assert.Contains(t, rec.Body.String(), `"revoked_at"`)
}

func TestHandlers_Errors(t *testing.T) {
	service := NewService(NewMemoryStore(), 1, logrus.New())
	router := newTestRouter(service, nil)

	assert.Equal(t, http.StatusUnauthorized, do(router, "GET", "/api-keys", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, "POST", "/api-keys", "org_1", `{"name":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, "POST", "/api-keys", "org_1", `{`).Code)

	require.Equal(t, http.StatusCreated, do(router, "POST", "/api-keys", "org_1", `{"name":"a"}`).Code)
	assert.Equal(t, http.StatusConflict, do(router, "POST", "/api-keys", "org_1", `{"name":"b"}`).Code)
}

func TestHandlers_CreateRateLimited(t *testing.T) {
	service := NewService(NewMemoryStore(), 0, logrus.New())
	limiter := ratelimit.NewLimiter(ratelimit.Config{Name: "api_key_create", Window: time.Hour, Max: 2})
	router := newTestRouter(service, limiter)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, do(router, "POST", "/api-keys", "org_1", `{"name":"k"}`).Code)
	}
	rec := do(router, "POST", "/api-keys", "org_1", `{"name":"k"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// the window is per organization
	assert.Equal(t, http.StatusCreated, do(router, "POST", "/api-keys", "org_2", `{"name":"k"}`).Code)
}
