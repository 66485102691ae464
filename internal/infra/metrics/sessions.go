package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		sessionsStarted,
		sessionsEnded,
		sessionWarnings,
		sessionMessages,
		sessionDurationMin,
		sessionsSwept,
		messagesPurged,
	)
}

var (
	sessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "therapy_sessions_started_total",
			Help: "Sessions opened (first message of a tuple with no active session).",
		},
	)

	sessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapy_sessions_ended_total",
			Help: "Sessions closed, by trigger.",
		},
		[]string{"trigger"}, // 'duration', 'messages', 'explicit', 'force'
	)

	sessionWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapy_session_warnings_total",
			Help: "Ending-warning signals surfaced, by threshold type.",
		},
		[]string{"type"}, // 'time', 'messages'
	)

	sessionMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "therapy_session_messages_total",
			Help: "User messages recorded against active sessions.",
		},
	)

	sessionDurationMin = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "therapy_session_duration_minutes",
			Help:    "Final session duration distribution in minutes.",
			Buckets: []float64{1, 5, 10, 15, 20, 25, 30, 45, 60},
		},
	)
	sessionsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "therapy_sessions_swept_total",
			Help: "Abandoned sessions closed by the background sweeper.",
		},
	)

	messagesPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "therapy_messages_purged_total",
			Help: "Messages deleted by the retention worker.",
		},
	)
)

func IncSessionStarted()            { sessionsStarted.Inc() }
func IncSessionMessage()            { sessionMessages.Inc() }
func IncSessionWarning(typ string)  { sessionWarnings.WithLabelValues(norm(typ)).Inc() }
func ObserveSessionEnd(trigger string, durationMinutes int) {
	sessionsEnded.WithLabelValues(norm(trigger)).Inc()
	sessionDurationMin.Observe(float64(durationMinutes))
}

func IncSessionsSwept(n int64)  { sessionsSwept.Add(float64(n)) }
func IncMessagesPurged(n int64) { messagesPurged.Add(float64(n)) }
