package coderabbit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReport(t *testing.T) {
	var gotReq reportRequest
	var gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/report.generate", r.URL.Path)
		gotKey = r.Header.Get("x-coderabbitai-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`[{"group": "cool-repo", "report": "| cool-repo | F | ... | ... |"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	c.now = func() time.Time { return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) }

	body, err := c.GenerateReport(context.Background(), "roast them all")
	require.NoError(t, err)

	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "2026-01-01", gotReq.From)
	assert.Equal(t, "2026-03-15", gotReq.To)
	assert.Equal(t, "Custom", gotReq.PromptTemplate)
	assert.Equal(t, "REPOSITORY", gotReq.GroupBy)
	assert.Equal(t, "roast them all", gotReq.Prompt)
	assert.Contains(t, string(body), "cool-repo")
}

func TestGenerateReportNoKey(t *testing.T) {
	c := NewClient("", "")
	_, err := c.GenerateReport(context.Background(), "p")
	assert.Error(t, err)
}

func TestGenerateReportAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key")
	_, err := c.GenerateReport(context.Background(), "p")
	assert.Error(t, err)
}
