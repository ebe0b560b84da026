package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/platinummonkey/lumen/pkg/orgs"
	"github.com/platinummonkey/lumen/pkg/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeReport(t *testing.T, body []byte) (UsageReport, map[usage.ResourceKind]usage.ResourceUsage) {
	t.Helper()
	var report UsageReport
	require.NoError(t, json.Unmarshal(body, &report))
	byKind := make(map[usage.ResourceKind]usage.ResourceUsage, len(report.Resources))
	for _, r := range report.Resources {
		byKind[r.Resource] = r
	}
	return report, byKind
}

func TestGetUsage(t *testing.T) {
	f := newFixture(t)
	_, err := f.accountant.Increment(context.Background(), usage.Key{OrgID: "org_free", Period: thisPeriod, Kind: usage.Pages}, 2)
	require.NoError(t, err)

	rec := f.do(t, "GET", "/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	report, byKind := decodeReport(t, rec.Body.Bytes())
	assert.Equal(t, thisPeriod, report.Period)
	assert.Equal(t, orgs.PlanFree, report.Plan)
	assert.Len(t, report.Resources, len(usage.AllKinds))

	assert.Equal(t, usage.ResourceUsage{Resource: usage.Pages, Used: 2, Limit: 3, Percent: 67}, byKind[usage.Pages])
	assert.Equal(t, usage.ResourceUsage{Resource: usage.Checks, Used: 0, Limit: 50, Percent: 0}, byKind[usage.Checks])
	// free plan has no articles: cap 0 reads as fully used
	assert.Equal(t, 100, byKind[usage.Articles].Percent)
}

func TestGetUsage_Period(t *testing.T) {
	f := newFixture(t)
	_, err := f.accountant.Increment(context.Background(), usage.Key{OrgID: "org_free", Period: "2026-02", Kind: usage.Checks}, 7)
	require.NoError(t, err)

	rec := f.do(t, "GET", "/usage?period=2026-02", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report, byKind := decodeReport(t, rec.Body.Bytes())
	assert.Equal(t, usage.Period("2026-02"), report.Period)
	assert.Equal(t, int64(7), byKind[usage.Checks].Used)

	rec = f.do(t, "GET", "/usage", nil)
	_, byKind = decodeReport(t, rec.Body.Bytes())
	assert.Zero(t, byKind[usage.Checks].Used)

	rec = f.do(t, "GET", "/usage?period=Feb-2026", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
