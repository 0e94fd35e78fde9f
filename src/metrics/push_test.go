package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thought-machine/revcache/src/cli"
	"github.com/thought-machine/revcache/src/core"
)

type recorder struct {
	mutex  sync.Mutex
	paths  []string
	bodies []string
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	b, _ := io.ReadAll(req.Body)
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.paths = append(r.paths, req.Method+" "+req.URL.Path)
	r.bodies = append(r.bodies, string(b))
	w.WriteHeader(http.StatusAccepted)
}

func newRegistry(t *testing.T) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "revcache_test_total",
		Help: "A counter for testing",
	})
	registry.MustRegister(counter)
	counter.Add(3)
	return registry
}

func TestNoPushGateway(t *testing.T) {
	p := New(core.DefaultConfiguration(), newRegistry(t))
	assert.Nil(t, p)
	assert.NoError(t, p.Push())
}

func TestPush(t *testing.T) {
	r := &recorder{}
	server := httptest.NewServer(r)
	defer server.Close()

	config := core.DefaultConfiguration()
	config.Metrics.PushGatewayURL = server.URL
	config.Metrics.Timeout = cli.Duration(5 * time.Second)
	require.NoError(t, New(config, newRegistry(t)).Push())

	require.Equal(t, 1, len(r.paths))
	assert.Equal(t, "POST", strings.SplitN(r.paths[0], " ", 2)[0])
	assert.True(t, strings.HasPrefix(r.paths[0], "POST /metrics/job/revcache/"), r.paths[0])
	assert.Contains(t, r.paths[0], "/user/")
	assert.NotEmpty(t, r.bodies[0])
}

func TestPushFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	config := core.DefaultConfiguration()
	config.Metrics.PushGatewayURL = server.URL
	assert.Error(t, New(config, newRegistry(t)).Push())
}

func TestPushTimeout(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-done
	}))
	defer server.Close()
	defer close(done)

	config := core.DefaultConfiguration()
	config.Metrics.PushGatewayURL = server.URL
	config.Metrics.Timeout = cli.Duration(50 * time.Millisecond)
	err := New(config, newRegistry(t)).Push()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
