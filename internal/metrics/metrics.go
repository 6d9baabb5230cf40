package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the session lifecycle counters. A nil *Metrics is valid and
// records nothing, so instrumentation stays optional in tests.
type Metrics struct {
	Logins    *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
	Resolves  *prometheus.CounterVec
	Logouts   prometheus.Counter
}

// New registers the session counters with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentgate_session_logins_total",
			Help: "Total number of login attempts by realm and result",
		}, []string{"realm", "result"}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentgate_session_refreshes_total",
			Help: "Total number of credential refresh attempts by result",
		}, []string{"result"}),
		Resolves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentgate_session_profile_resolves_total",
			Help: "Total number of profile resolver passes by branch and result",
		}, []string{"branch", "result"}),
		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "talentgate_session_logouts_total",
			Help: "Total number of sessions cleared",
		}),
	}
}

func (m *Metrics) IncrementLogin(realm, result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(realm, result).Inc()
}

func (m *Metrics) IncrementRefresh(result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementResolve(branch, result string) {
	if m == nil {
		return
	}
	m.Resolves.WithLabelValues(branch, result).Inc()
}

func (m *Metrics) IncrementLogout() {
	if m == nil {
		return
	}
	m.Logouts.Inc()
}
