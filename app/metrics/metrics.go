// Package metrics exposes prometheus counters for credential lifecycle outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "menu_auth"

// Recorder receives credential lifecycle outcomes.
type Recorder interface {
	Registration(kind string)
	Login(outcome string)
	PasswordReset(outcome string)
	NotificationFailed(notification string)
}

type PrometheusRecorder struct {
	registrations  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	passwordResets *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
}

// NewPrometheusRecorder builds the counters and registers them with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Accounts registered, by account kind.",
		}, []string{"kind"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Authentication attempts, by outcome.",
		}, []string{"outcome"}),
		passwordResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_resets_total",
			Help:      "Password reset requests and completions, by outcome.",
		}, []string{"outcome"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Best-effort emails that could not be delivered, by type.",
		}, []string{"type"}),
	}

	for _, c := range []prometheus.Collector{r.registrations, r.logins, r.passwordResets, r.notifyFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *PrometheusRecorder) Registration(kind string) {
	r.registrations.WithLabelValues(kind).Inc()
}

func (r *PrometheusRecorder) Login(outcome string) {
	r.logins.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRecorder) PasswordReset(outcome string) {
	r.passwordResets.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRecorder) NotificationFailed(notification string) {
	r.notifyFailures.WithLabelValues(notification).Inc()
}

// Noop discards everything.
type Noop struct{}

func (Noop) Registration(string)       {}
func (Noop) Login(string)              {}
func (Noop) PasswordReset(string)      {}
func (Noop) NotificationFailed(string) {}
