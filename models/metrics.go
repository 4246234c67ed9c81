package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sceneIDLabel = "scene_id"
)

var (
	sessionCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "session_count",
		Help: "The number of sessions.",
	}, []string{sceneIDLabel})

	sessionCountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_count_total",
		Help: "The total number of sessions.",
	}, []string{sceneIDLabel})

	participantCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "participant_count",
		Help: "The number of participants observing a scene.",
	}, []string{sceneIDLabel})
)

func instrumentIncreaseSessionGauge(sceneID string) {
	sessionCount.
		With(prometheus.Labels{sceneIDLabel: sceneID}).
		Inc()
}

func instrumentDecreaseSessionGauge(sceneID string) {
	sessionCount.
		With(prometheus.Labels{sceneIDLabel: sceneID}).
		Dec()
}

func instrumentCountSession(sceneID string) {
	sessionCountTotal.
		With(prometheus.Labels{sceneIDLabel: sceneID}).
		Inc()
}

func instrumentIncreaseParticipantGauge(sceneID string) {
	participantCount.
		With(prometheus.Labels{sceneIDLabel: sceneID}).
		Inc()
}

func instrumentDecreaseParticipantGauge(sceneID string) {
	participantCount.
		With(prometheus.Labels{sceneIDLabel: sceneID}).
		Dec()
}
