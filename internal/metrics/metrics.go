package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "threads_ws_connections",
		Help: "Current number of active websocket connections",
	})
	WSDroppedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threads_ws_dropped_messages_total",
		Help: "Messages dropped because a client send buffer was full",
	})
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threads_messages_sent_total",
		Help: "Total number of chat messages persisted",
	})
	MessageDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threads_message_deliveries_total",
		Help: "Realtime message frames queued to recipient connections",
	})
	PostsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threads_posts_created_total",
		Help: "Total number of posts created",
	})
	ConversationsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threads_conversations_created_total",
		Help: "Total number of conversations created by find-or-create",
	})
	AuthEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_auth_events_total",
		Help: "Auth protocol outcomes by event and result",
	}, []string{"event", "result"})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WSConnections,
		WSDroppedMessages,
		MessagesSent,
		MessageDeliveries,
		ConversationsCreated,
		PostsCreated,
		AuthEvents,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// RecordAuth counts one auth protocol outcome.
func RecordAuth(event string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	AuthEvents.WithLabelValues(event, result).Inc()
}

// Middleware records request counts and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{"method": r.Method, "path": path, "status": strconv.Itoa(status)}
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
