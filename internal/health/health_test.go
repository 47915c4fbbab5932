package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error {
	return f.err
}

func newTestServer(pinger Pinger) *httptest.Server {
	logger := zerolog.Nop()
	s := NewServer(pinger, 0, &logger)

	return httptest.NewServer(s.Handler())
}

func TestReadyzOKWhenPingerHealthy(t *testing.T) {
	t.Parallel()

	srv := newTestServer(fakePinger{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyzServiceUnavailableWhenPingerFails(t *testing.T) {
	t.Parallel()

	srv := newTestServer(fakePinger{err: errors.New("db down")})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestReadyzOKWhenNoPingerConfigured(t *testing.T) {
	t.Parallel()

	srv := newTestServer(nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthzAlwaysOK(t *testing.T) {
	t.Parallel()

	srv := newTestServer(fakePinger{err: errors.New("db down")})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	t.Parallel()

	srv := newTestServer(nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
