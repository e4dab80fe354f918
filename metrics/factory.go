package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Namespace = "taibif"
	Subsystem = "camera_trap"
	Factory   = promauto.With(prometheus.DefaultRegisterer)
)

func FQName(name string) string {
	return prometheus.BuildFQName(Namespace, Subsystem, name)
}

func ScrapeHandler() http.Handler {
	return promhttp.Handler()
}
