// Package metrics exposes Prometheus-format metrics for Spartic nodes on a
// dedicated listener, kept off the main API port so scrapes never contend
// with protocol traffic.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
)

// MetricsServer serves the metrics endpoint for one process.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr. An empty addr returns a
// server whose ListenAndServe is a no-op, so callers don't need to special
// case a disabled metrics listener.
func New(packageName, addr string) (*MetricsServer, error) {
	if addr == "" {
		return &MetricsServer{}, nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Package", packageName)
		metrics.WritePrometheus(w, true)
	})

	return &MetricsServer{
		srv: &http.Server{Addr: addr, Handler: mux},
	}, nil
}

// ListenAndServe blocks serving metrics until Shutdown.
func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return nil
	}
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}

// Counter returns the named counter, creating it on first use.
func Counter(name string) *metrics.Counter {
	return metrics.GetOrCreateCounter(name)
}

// GroupCounter returns a counter labeled with a group ID.
func GroupCounter(name string, groupID uint64) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`%s{group="%d"}`, name, groupID))
}
