// Package metrics supports sending revcache's metrics to a Prometheus pushgateway.
// Because revcache runs as a transient process we can't wait around for Prometheus to
// scrape us, so we push everything once at the end.
package metrics

import (
	"fmt"
	"os"
	"os/user"
	"runtime"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"gopkg.in/op/go-logging.v1"

	"github.com/thought-machine/revcache/src/cli"
	"github.com/thought-machine/revcache/src/core"
)

var log = logging.MustGetLogger("metrics")

// maxRetries is the number of times we retry a failed push.
const maxRetries = 2

// A Pusher sends metrics from a gatherer to a pushgateway.
type Pusher struct {
	pusher  *push.Pusher
	url     string
	timeout time.Duration
}

// New returns a new Pusher for the given config, or nil if no pushgateway is configured.
func New(config *core.Configuration, gatherer prometheus.Gatherer) *Pusher {
	if config.Metrics.PushGatewayURL == "" {
		return nil
	}
	username := "unknown"
	if u, err := user.Current(); err != nil {
		log.Warning("Can't determine current user name for metrics")
	} else {
		username = u.Username
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	client := retryablehttp.NewClient()
	client.Logger = &cli.HTTPLogWrapper{Log: log}
	client.RetryMax = maxRetries
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	return &Pusher{
		pusher: push.New(config.Metrics.PushGatewayURL, config.Metrics.JobName).
			Client(client.StandardClient()).
			Gatherer(gatherer).
			Grouping("instance", hostname).
			Grouping("user", username).
			Grouping("arch", runtime.GOOS+"_"+runtime.GOARCH),
		url:     config.Metrics.PushGatewayURL,
		timeout: time.Duration(config.Metrics.Timeout),
	}
}

// Push sends the current metrics. It's a no-op on a nil Pusher.
func (p *Pusher) Push() error {
	if p == nil {
		return nil
	}
	start := time.Now()
	if err := deadline(p.pusher.Add, p.timeout); err != nil {
		return fmt.Errorf("Could not push metrics to %s: %w", p.url, err)
	}
	log.Debug("Pushed metrics in %0.3fs", time.Since(start).Seconds())
	return nil
}

// deadline applies a deadline to an arbitrary function and returns when either the function
// completes or the deadline expires.
func deadline(f func() error, timeout time.Duration) error {
	if timeout <= 0 {
		return f()
	}
	c := make(chan error, 1)
	go func() {
		c <- f()
	}()
	select {
	case err := <-c:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("Metrics push timed out")
	}
}
