package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/platinummonkey/lumen/pkg/contextkeys"
	"github.com/platinummonkey/lumen/pkg/orgs"
	"github.com/platinummonkey/lumen/pkg/quota"
	"github.com/platinummonkey/lumen/pkg/usage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newQuotaFixture(t *testing.T) (*QuotaMiddleware, *usage.Accountant) {
	t.Helper()
	directory := orgs.NewMemoryDirectory(orgs.NewCatalog(logrus.New()))
	directory.Put(&orgs.Organization{ID: "org_free", Plan: orgs.PlanFree})
	accountant := usage.NewAccountant(usage.NewMemoryStore())
	enforcer := quota.NewEnforcer(directory, accountant,
		quota.WithLogger(logrus.New()),
		quota.WithClock(func() time.Time { return fixedNow }))
	return NewQuotaMiddleware(enforcer, logrus.New()), accountant
}

func orgRequest(orgID string) *http.Request {
	req := httptest.NewRequest("POST", "/pages/generate", nil)
	if orgID != "" {
		req = req.WithContext(contextkeys.WithOrgID(req.Context(), orgID))
	}
	return req
}

func pagesUsed(t *testing.T, accountant *usage.Accountant) int64 {
	t.Helper()
	n, err := accountant.Read(context.Background(), usage.Key{OrgID: "org_free", Period: "2026-03", Kind: usage.Pages})
	require.NoError(t, err)
	return n
}

func TestQuotaMiddleware_ReservesUntilCap(t *testing.T) {
	m, accountant := newQuotaFixture(t)

	var seen *quota.Decision
	handler := m.Reserve(usage.Pages, Fixed(1))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = DecisionFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	// free plan: 3 pages per month
	for i := 1; i <= 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, orgRequest("org_free"))
		require.Equal(t, http.StatusCreated, rec.Code)
		require.NotNil(t, seen)
		assert.EqualValues(t, i, seen.CurrentUsage)
	}

	seen = nil
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, orgRequest("org_free"))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Nil(t, seen, "handler must not run when denied")

	var body struct {
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "USAGE_LIMIT_REACHED", body.Details["code"])
	assert.Equal(t, "3", body.Details["limit"])
	assert.EqualValues(t, 3, pagesUsed(t, accountant))
}

func TestQuotaMiddleware_RollsBackOnFailure(t *testing.T) {
	m, accountant := newQuotaFixture(t)

	failing := m.Reserve(usage.Pages, Fixed(2))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	rec := httptest.NewRecorder()
	failing.ServeHTTP(rec, orgRequest("org_free"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.EqualValues(t, 0, pagesUsed(t, accountant))

	panicking := m.Reserve(usage.Pages, Fixed(1))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("generator crashed")
	}))
	assert.Panics(t, func() {
		panicking.ServeHTTP(httptest.NewRecorder(), orgRequest("org_free"))
	})
	assert.EqualValues(t, 0, pagesUsed(t, accountant))
}

func TestQuotaMiddleware_Rejections(t *testing.T) {
	m, _ := newQuotaFixture(t)
	handler := m.Reserve(usage.Pages, func(r *http.Request) (int64, error) {
		if r.URL.Query().Get("bad") != "" {
			return 0, errors.New("keywords are required")
		}
		return 1, nil
	})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, orgRequest(""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := orgRequest("org_free")
	req.URL.RawQuery = "bad=1"
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// an org the directory does not know is a configuration problem
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, orgRequest("org_unknown"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
