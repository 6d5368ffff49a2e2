package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_client_connection_state",
			Help: "Connection state as a one-hot gauge per state label.",
		},
		[]string{"state"},
	)
	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_reconnects_total",
			Help: "Total number of automatic reconnect attempts.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	messagesRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_messages_routed_total",
			Help: "Inbound messages routed into the conversation store.",
		},
		[]string{"kind"},
	)
	typingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_typing_events_total",
			Help: "Typing events by direction.",
		},
		[]string{"direction"},
	)
	unreadTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_client_unread_messages",
			Help: "Unread messages summed across conversations.",
		},
	)
	restErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_rest_errors_total",
			Help: "Failed REST collaborator calls.",
		},
		[]string{"op"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_http_requests_total",
			Help: "Debug endpoint requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_client_http_request_duration_seconds",
			Help:    "Debug endpoint latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		connState,
		reconnectsTotal,
		wsEventsTotal,
		messagesRoutedTotal,
		typingEventsTotal,
		unreadTotal,
		restErrorsTotal,
		amqpPublishErrorsTotal,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// SetConnectionState flips the one-hot connection state gauge.
func SetConnectionState(state string) {
	for _, s := range []string{"disconnected", "connecting", "connected", "errored"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		connState.WithLabelValues(s).Set(v)
	}
}

func IncReconnect() {
	reconnectsTotal.Inc()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncMessageRouted(kind string) {
	messagesRoutedTotal.WithLabelValues(kind).Inc()
}

func IncTypingEvent(direction string) {
	typingEventsTotal.WithLabelValues(direction).Inc()
}

func SetUnreadTotal(n int) {
	unreadTotal.Set(float64(n))
}

func IncRESTError(op string) {
	restErrorsTotal.WithLabelValues(op).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
