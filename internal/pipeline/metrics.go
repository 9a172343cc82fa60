package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// BuildMetrics tracks model builds. Collectors are shared by every builder in
// the process.
type BuildMetrics struct {
	buildDuration *prometheus.HistogramVec
	buildsTotal   *prometheus.CounterVec
	modelUsers    prometheus.Gauge
	modelGroups   prometheus.Gauge
	modelProducts *prometheus.GaugeVec
	uncategorized *prometheus.GaugeVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *BuildMetrics
)

// NewBuildMetrics returns the process wide build metrics, registering them
// with the default registry on first use.
func NewBuildMetrics(logger *logrus.Logger) *BuildMetrics {
	metricsOnce.Do(func() {
		m := &BuildMetrics{
			buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "shoprec_model_build_duration_seconds",
				Help:    "Duration of model builds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			}, []string{"model"}),
			buildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "shoprec_model_builds_total",
				Help: "Model builds by outcome",
			}, []string{"model", "outcome"}),
			modelUsers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "shoprec_model_users",
				Help: "Users covered by the last built advanced model",
			}),
			modelGroups: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "shoprec_model_groups",
				Help: "User groups in the last built advanced model",
			}),
			modelProducts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "shoprec_model_products",
				Help: "Products ranked by the last built model",
			}, []string{"model"}),
			uncategorized: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "shoprec_model_uncategorized_products",
				Help: "Products skipped for lack of a category in the last build",
			}, []string{"model"}),
		}

		for name, c := range map[string]prometheus.Collector{
			"shoprec_model_build_duration_seconds": m.buildDuration,
			"shoprec_model_builds_total":           m.buildsTotal,
			"shoprec_model_users":                  m.modelUsers,
			"shoprec_model_groups":                 m.modelGroups,
			"shoprec_model_products":               m.modelProducts,
			"shoprec_model_uncategorized_products": m.uncategorized,
		} {
			if err := prometheus.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok && logger != nil {
					logger.WithError(err).Warnf("Failed to register %s metric", name)
				}
			}
		}
		sharedMetrics = m
	})
	return sharedMetrics
}

func (m *BuildMetrics) observeBuild(model string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.buildsTotal.WithLabelValues(model, outcome).Inc()
	if err == nil {
		m.buildDuration.WithLabelValues(model).Observe(seconds)
	}
}

func (m *BuildMetrics) setAdvanced(users, groups, products, uncategorized int) {
	if m == nil {
		return
	}
	m.modelUsers.Set(float64(users))
	m.modelProducts.WithLabelValues("advanced").Set(float64(products))
	m.modelGroups.Set(float64(groups))
	m.uncategorized.WithLabelValues("advanced").Set(float64(uncategorized))
}

func (m *BuildMetrics) setBasic(products int) {
	if m == nil {
		return
	}
	m.modelProducts.WithLabelValues("basic").Set(float64(products))
}
