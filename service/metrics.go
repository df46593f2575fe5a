package service

import "github.com/prometheus/client_golang/prometheus"

// PromCollectors lists the collectors of this package. The gateway
// registers them when it mounts /metrics.
var PromCollectors []prometheus.Collector

var (
	registrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voting_gateway_registrations_total",
		Help: "registration calls by result (inserted, updated, invalid, failed)",
	}, []string{"result"})

	registrationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "voting_gateway_registration_seconds",
		Help:    "time spent reconciling a registration with the identity store",
		Buckets: prometheus.DefBuckets,
	})

	otpChallengesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voting_gateway_otp_challenges_total",
		Help: "otp send and check calls by provider status",
	}, []string{"operation", "status"})

	fundingOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voting_gateway_funding_outcomes_total",
		Help: "funding attempts by outcome",
	}, []string{"outcome"})

	fundingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voting_gateway_funding_seconds",
		Help:    "time from admission to outcome of a funding attempt",
		Buckets: []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120, 180},
	}, []string{"outcome"})
)

func init() {
	PromCollectors = append(PromCollectors, registrationsTotal, registrationDuration,
		otpChallengesTotal, fundingOutcomesTotal, fundingDuration)
}
