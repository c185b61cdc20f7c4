// Package telemetry wires the ambient logging and metrics stack every
// component shares: a component-scoped logrus.Entry factory and a
// Prometheus registry exposed over HTTP, following
// core/system_health_logging.go's NewHealthLogger/StartMetricsServer
// shape (JSONFormatter, a file-plus-stderr writer, one NewRegistry with
// MustRegister per metric).
package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Telemetry bundles the process-wide logger and metrics registry.
type Telemetry struct {
	Logger   *logrus.Logger
	Registry *prometheus.Registry

	logFile *os.File

	NodeCount        prometheus.Gauge
	RPCStreams       prometheus.Gauge
	DroppedJobs      prometheus.Counter
	FatalNodeErrors  prometheus.Counter
}

// New builds a Telemetry writing JSON logs to logPath (stderr only if
// logPath is empty) at the given level, with a fresh Prometheus registry
// carrying the runtime-wide gauges/counters spec §0 names (per-pool
// gauges are registered into the same Registry by workpool.New via
// workpool.WithRegisterer; the storage pipeline registers no gauges).
func New(logPath string, level logrus.Level) (*Telemetry, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(level)

	var file *os.File
	out := io.Writer(os.Stderr)
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		file = f
		out = io.MultiWriter(os.Stderr, f)
	}
	logger.SetOutput(out)

	reg := prometheus.NewRegistry()
	t := &Telemetry{
		Logger:   logger,
		Registry: reg,
		logFile:  file,
		NodeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thalamus_node_count",
			Help: "Number of live node graph instances",
		}),
		RPCStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thalamus_rpc_streams",
			Help: "Number of open RPC connections",
		}),
		DroppedJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thalamus_dropped_jobs_total",
			Help: "Total thread-pool jobs dropped due to a full queue",
		}),
		FatalNodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thalamus_fatal_node_errors_total",
			Help: "Total node constructor failures",
		}),
	}
	reg.MustRegister(t.NodeCount, t.RPCStreams, t.DroppedJobs, t.FatalNodeErrors)
	return t, nil
}

// Component returns a logrus.Entry scoped with a "component" field, the
// way every package in this codebase is meant to log (spec §0).
func (t *Telemetry) Component(name string) *logrus.Entry {
	return t.Logger.WithField("component", name)
}

// Close releases the log file, if one was opened.
func (t *Telemetry) Close() error {
	if t.logFile == nil {
		return nil
	}
	return t.logFile.Close()
}

// StartMetricsServer exposes /metrics on addr, mirroring
// HealthLogger.StartMetricsServer.
func (t *Telemetry) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(t.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Component("telemetry").WithError(err).Error("metrics server stopped")
		}
	}()
	return srv
}

// ShutdownMetricsServer gracefully stops srv.
func (t *Telemetry) ShutdownMetricsServer(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
