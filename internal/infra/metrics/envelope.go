package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(envelopeDecodes) }

var envelopeDecodes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "message_envelope_decodes_total",
		Help: "Envelope decode outcomes, by the chain stage that resolved them.",
	},
	[]string{"stage"},
)

func ObserveEnvelopeDecode(stage string) {
	envelopeDecodes.WithLabelValues(norm(stage)).Inc()
}
