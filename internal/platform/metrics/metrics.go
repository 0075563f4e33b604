// Package metrics holds process-wide Prometheus collectors and the scrape
// handler. Module metrics live next to their module.
package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "campusgate_build_info",
	Help: "Build and environment of the running process; value is always 1",
}, []string{"version", "environment"})

// RecordBuildInfo publishes the running version and environment.
func RecordBuildInfo(version, environment string) {
	buildInfo.WithLabelValues(version, environment).Set(1)
}

// RegisterDBStats exports sql.DBStats for db under the given name. Safe to
// call with a nil db.
func RegisterDBStats(db *sql.DB, name string) error {
	if db == nil {
		return nil
	}
	return prometheus.Register(collectors.NewDBStatsCollector(db, name))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
