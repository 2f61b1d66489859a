package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/errlog"
	"github.com/teslashibe/go-gaze/pkg/report"
)

type fakeStore struct {
	sessions []errlog.Session
	errs     map[string][]float64
}

func (f *fakeStore) Sessions() ([]errlog.Session, error) { return f.sessions, nil }

func (f *fakeStore) Errors(id string) ([]float64, error) { return f.errs[id], nil }

func newStoreServer() *Server {
	s := NewServer(&fakeTracker{}, 1, nil)
	s.SetStore(&fakeStore{
		sessions: []errlog.Session{{ID: "abc", Prefix: "alice", StartedAt: time.Unix(0, 0).UTC(), Records: 4}},
		errs:     map[string][]float64{"abc": {10, 20, 30, 40}},
	})
	return s
}

func TestServer_Sessions(t *testing.T) {
	s := newStoreServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/sessions", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var sessions []errlog.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "alice", sessions[0].Prefix)

	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/sessions/abc", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var got struct {
		Summary   report.Summary `json:"summary"`
		Histogram []report.Bin   `json:"histogram"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 4, got.Summary.N)
	assert.Equal(t, 25.0, got.Summary.Mean)
	assert.NotEmpty(t, got.Histogram)

	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/sessions/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestServer_SessionChart(t *testing.T) {
	s := newStoreServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/charts/sessions/abc", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "echarts")
}

func TestServer_NoStore(t *testing.T) {
	s := NewServer(&fakeTracker{}, 1, nil)
	for _, path := range []string{"/api/sessions", "/api/sessions/abc", "/charts/sessions/abc"} {
		resp, err := s.App().Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode, path)
	}
}
