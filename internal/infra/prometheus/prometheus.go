package prometheus

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hoplink/hoplink/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer exposes /metrics on its own listener, separate from the
// redirect surface, so scrapes never compete with resolutions.
func NewServer(cfg config.PrometheusConfig) *http.Server {
	port := cfg.Port
	if port == 0 {
		port = 9090
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}
