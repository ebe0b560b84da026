package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createBody struct {
	Name string `json:"name"`
}

func TestParseJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"ci"}`))
	var body createBody
	require.NoError(t, ParseJSON(req, &body))
	assert.Equal(t, "ci", body.Name)
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"empty body", "", "invalid JSON: empty body"},
		{"malformed", `{"name":`, "invalid JSON"},
		{"unknown field", `{"name":"ci","scope":"admin"}`, "unknown field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var body createBody
			err := ParseJSON(req, &body)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader("not json"))
	var body createBody

	assert.False(t, ParseJSONOrError(w, req, &body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathString(t *testing.T) {
	req := httptest.NewRequest("GET", "/webhooks/wh_1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "wh_1"})

	id, err := ParsePathString(req, "id")
	require.NoError(t, err)
	assert.Equal(t, "wh_1", id)

	_, err = ParsePathString(req, "missing")
	assert.Error(t, err)

	w := httptest.NewRecorder()
	_, ok := ParsePathStringOrError(w, req, "missing")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/usage?period=2026-02", nil)
	assert.Equal(t, "2026-02", ParseQueryString(req, "period", "2026-03"))
	assert.Equal(t, "fallback", ParseQueryString(req, "missing", "fallback"))
}
