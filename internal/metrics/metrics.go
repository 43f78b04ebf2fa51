// Package metrics holds the process Prometheus collectors.
// Labels use bounded value sets only (reasons, event types, state names).
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Simulation metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Time spent in a simulation tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
	})

	tickTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Completed simulation ticks",
	})

	entityCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_entity_count",
		Help: "Living units and buildings",
	})

	pathRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_path_requests_total",
		Help: "A* searches run",
	})

	pathFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_path_failures_total",
		Help: "A* searches that found no path",
	})

	commandsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_commands_rejected_total",
		Help: "Commands that failed validation",
	}, []string{"reason"})

	eventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_events_total",
		Help: "Events drained from the outbound queue",
	}, []string{"type"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_events_dropped_total",
		Help: "Event batches dropped because a subscriber was full",
	})

	// Opponent metrics
	aiTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_state_transitions_total",
		Help: "Opponent state machine transitions",
	}, []string{"from", "to"})

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "invalid"

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "WebSocket messages by direction",
	}, []string{"direction"})

	// Output metrics
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "render_frames_total",
		Help: "PNG frames by outcome",
	}, []string{"result"}) // "written", "dropped", "error"

	archiveRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_rows_total",
		Help: "Event rows buffered for the Parquet archive",
	})
)

// RecordTick records tick timing and the living entity count
func RecordTick(duration time.Duration, entities int) {
	tickDuration.Observe(duration.Seconds())
	tickTotal.Inc()
	entityCount.Set(float64(entities))
}

// AddPathStats adds pathfinder request and failure deltas
func AddPathStats(requests, failures uint64) {
	pathRequests.Add(float64(requests))
	pathFailures.Add(float64(failures))
}

// RecordCommandRejected counts a validation failure
func RecordCommandRejected(reason string) {
	commandsRejected.WithLabelValues(reason).Inc()
}

// RecordEvent counts a drained event by type name
func RecordEvent(eventType string) {
	eventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordEventsDropped counts a batch lost to a slow subscriber
func RecordEventsDropped() {
	eventsDropped.Inc()
}

// RecordAITransition counts an opponent state change
func RecordAITransition(from, to string) {
	aiTransitions.WithLabelValues(from, to).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, statusClass(status)).Inc()
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "invalid"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// RecordWSMessage counts a message; direction is "in" or "out"
func RecordWSMessage(direction string) {
	wsMessagesTotal.WithLabelValues(direction).Inc()
}

// RecordFrame counts a frame outcome: "written", "dropped" or "error"
func RecordFrame(result string) {
	framesTotal.WithLabelValues(result).Inc()
}

// AddArchiveRows counts rows buffered by the event archive
func AddArchiveRows(n int) {
	archiveRows.Add(float64(n))
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return http.StatusText(status)
	}
	return strconv.Itoa(status/100) + "xx"
}
