package prometheus

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sifan077/PowerLink/config"
)

const metricsPath = "/metrics"

// NewRegistry returns a registry carrying the Go runtime and process collectors.
// Service metrics are added to it by NewMetrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewServer exposes reg on its own port so scrapes never share the redirect listener.
func NewServer(cfg config.PrometheusConfig, reg *prometheus.Registry) *http.Server {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}

	handler := promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		EnableOpenMetrics: true,
		Timeout:           10 * time.Second,
	}))

	mux := http.NewServeMux()
	mux.Handle(metricsPath, handler)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
