package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authgate_logins_success_total",
		Help: "Total number of successful logins.",
	})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authgate_logins_failure_total",
		Help: "Total number of failed or denied logins.",
	})
	LogoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authgate_logouts_total",
		Help: "Total number of logout requests.",
	})
	UserRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authgate_users_registered_total",
		Help: "Total number of user records created at first login.",
	})
	ValidateRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_validate_requests_total",
		Help: "Total number of validate requests, labelled by outcome.",
	}, []string{"outcome"})
)

// Register registers the gateway metrics on the given registerer.
// It should be called once at application startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register metrics")
		return
	}
	for _, c := range []prometheus.Collector{
		LoginSuccessTotal,
		LoginFailureTotal,
		LogoutTotal,
		UserRegisteredTotal,
		ValidateRequestsTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Prometheus metrics registered.")
}
