package observe

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	onlineSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rencomm_online_sessions",
		Help: "Number of live server-side sessions",
	})

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rencomm_frames_total",
			Help: "Total frames by direction and message type",
		},
		[]string{"direction", "type"}, // in|out, STRING|JSON|IMAGE|AUDIO|MOVIE|TEXT
	)

	droppedFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rencomm_dropped_frames_total",
			Help: "Total inbound frames dropped by reason",
		},
		[]string{"reason"}, // malformed|unknown_type
	)

	callbackErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rencomm_callback_errors_total",
			Help: "Total callback failures by callback kind",
		},
		[]string{"kind"}, // connect|disconnect|receive
	)

	connectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rencomm_connect_attempts_total",
			Help: "Total client connect attempts by result",
		},
		[]string{"result"}, // ok|failed
	)

	sendErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rencomm_send_errors_total",
		Help: "Total failed frame writes",
	})

	cacheBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rencomm_cache_bytes",
		Help: "Bytes currently tracked by the media cache",
	})
)

func init() {
	prometheus.MustRegister(
		onlineSessions,
		framesTotal,
		droppedFramesTotal,
		callbackErrorsTotal,
		connectAttemptsTotal,
		sendErrorsTotal,
		cacheBytes,
	)
}

func AddOnline(delta float64)         { onlineSessions.Add(delta) }
func IncFrame(direction, kind string) { framesTotal.WithLabelValues(direction, kind).Inc() }
func IncDropped(reason string)        { droppedFramesTotal.WithLabelValues(reason).Inc() }
func IncCallbackError(kind string)    { callbackErrorsTotal.WithLabelValues(kind).Inc() }
func IncConnectAttempt(result string) { connectAttemptsTotal.WithLabelValues(result).Inc() }
func IncSendError()                   { sendErrorsTotal.Inc() }
func SetCacheBytes(n float64)         { cacheBytes.Set(n) }
