package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsolatesRegistries(t *testing.T) {
	a := New()
	b := New()

	a.ValidationErrors.Inc()
	a.SuccessfulQueries.WithLabelValues("/block").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.ValidationErrors))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ValidationErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.SuccessfulQueries.WithLabelValues("/block")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RowsReceived.Add(3)
	m.ChainDirectorySize.Set(4)
	m.FailedQueries.WithLabelValues("/uaw").Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "rows_received 3")
	assert.Contains(t, string(body), "chain_directory_size 4")
	assert.Contains(t, string(body), `failed_queries{path="/uaw"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
