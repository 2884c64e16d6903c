package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const serviceLabel = "keystile-api"

var (
	buildInfoOnce sync.Once

	// keystile_build_info: всегда 1, полезная нагрузка в метках
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keystile_build_info",
			Help: "Version, commit and Go runtime of the running keystile binary.",
		},
		[]string{"service", "version", "commit", "go_version"},
	)
)

// InitBuildInfo publishes the running build. Calling it again replaces the
// previous labels, so only one series is ever exported.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	if version == "" {
		version = "unknown"
	}
	if commit == "" {
		commit = "unknown"
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(serviceLabel, version, commit, runtime.Version()).Set(1)
}
