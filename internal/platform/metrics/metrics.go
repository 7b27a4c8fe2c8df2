// Package metrics provides observability for the control loop.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers control loop and I/O counters.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Behavior metrics
	StateTransitions  int64
	EmotionChanges    int64
	ObstacleOverrides int64
	Startles          int64
	StuckTriggers     int64
	HandlerPanics     int64
	OverridesApplied  int64
	OverridesRejected int64

	// Memory store metrics
	StoreWrites      int64
	StoreWriteLatSum int64
	StoreWriteLatMax int64
	StoreWriteErrors int64
	StoreDrops       int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = New()

// New creates an empty collector. Tests use their own instead of the global one.
func New() *Collector {
	return &Collector{StartTime: time.Now()}
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

func storeMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur || atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}

// RecordTick records a control loop tick.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))
	storeMax(&c.TickLatencyMax, int64(latency))

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordTransition counts a behavior state change.
func (c *Collector) RecordTransition() { atomic.AddInt64(&c.StateTransitions, 1) }

// RecordEmotionChange counts an emotion change.
func (c *Collector) RecordEmotionChange() { atomic.AddInt64(&c.EmotionChanges, 1) }

// RecordObstacle counts a proximity override.
func (c *Collector) RecordObstacle() { atomic.AddInt64(&c.ObstacleOverrides, 1) }

// RecordStartle counts a startle reaction.
func (c *Collector) RecordStartle() { atomic.AddInt64(&c.Startles, 1) }

// RecordStuck counts a stuck-triggered maneuver.
func (c *Collector) RecordStuck() { atomic.AddInt64(&c.StuckTriggers, 1) }

// RecordHandlerPanic counts a recovered state handler panic.
func (c *Collector) RecordHandlerPanic() { atomic.AddInt64(&c.HandlerPanics, 1) }

// RecordOverride counts an external override, applied or rejected.
func (c *Collector) RecordOverride(applied bool) {
	if applied {
		atomic.AddInt64(&c.OverridesApplied, 1)
	} else {
		atomic.AddInt64(&c.OverridesRejected, 1)
	}
}

// RecordStoreWrite records a write to the memory store.
func (c *Collector) RecordStoreWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.StoreWrites, 1)
	atomic.AddInt64(&c.StoreWriteLatSum, int64(latency))
	storeMax(&c.StoreWriteLatMax, int64(latency))
	if err != nil {
		atomic.AddInt64(&c.StoreWriteErrors, 1)
	}
}

// RecordStoreDrop counts a record dropped because the write buffer was full.
func (c *Collector) RecordStoreDrop() { atomic.AddInt64(&c.StoreDrops, 1) }

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	lastTick := c.LastTickTime
	c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	writes := atomic.LoadInt64(&c.StoreWrites)

	var tickAvg, writeAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if writes > 0 {
		writeAvg = float64(atomic.LoadInt64(&c.StoreWriteLatSum)) / float64(writes) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      lastTick.Format(time.RFC3339),
		},

		"behavior": map[string]interface{}{
			"transitions":        atomic.LoadInt64(&c.StateTransitions),
			"emotion_changes":    atomic.LoadInt64(&c.EmotionChanges),
			"obstacle_overrides": atomic.LoadInt64(&c.ObstacleOverrides),
			"startles":           atomic.LoadInt64(&c.Startles),
			"stuck_triggers":     atomic.LoadInt64(&c.StuckTriggers),
			"handler_panics":     atomic.LoadInt64(&c.HandlerPanics),
			"overrides_applied":  atomic.LoadInt64(&c.OverridesApplied),
			"overrides_rejected": atomic.LoadInt64(&c.OverridesRejected),
		},

		"store": map[string]interface{}{
			"writes":           writes,
			"avg_write_lat_ms": writeAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.StoreWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.StoreWriteErrors),
			"dropped":          atomic.LoadInt64(&c.StoreDrops),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

func writeMetric(w io.Writer, name, kind, help string, value string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(w, "%s %s\n\n", name, value)
}

// PrometheusHandler returns metrics in Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		count := func(v *int64) string { return fmt.Sprintf("%d", atomic.LoadInt64(v)) }

		writeMetric(w, "petbot_tick_count", "counter", "Total control loop ticks", count(&c.TickCount))
		writeMetric(w, "petbot_tick_latency_max_ms", "gauge", "Maximum tick latency",
			fmt.Sprintf("%.2f", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6))
		writeMetric(w, "petbot_state_transitions", "counter", "Behavior state transitions", count(&c.StateTransitions))
		writeMetric(w, "petbot_emotion_changes", "counter", "Emotion changes", count(&c.EmotionChanges))
		writeMetric(w, "petbot_obstacle_overrides", "counter", "Proximity overrides into avoiding", count(&c.ObstacleOverrides))
		writeMetric(w, "petbot_startles", "counter", "Startle reactions", count(&c.Startles))
		writeMetric(w, "petbot_stuck_triggers", "counter", "Maneuvers forced by stuck detection", count(&c.StuckTriggers))
		writeMetric(w, "petbot_handler_panics", "counter", "Recovered state handler panics", count(&c.HandlerPanics))
		writeMetric(w, "petbot_store_write_errors", "counter", "Memory store write errors", count(&c.StoreWriteErrors))
		writeMetric(w, "petbot_store_dropped", "counter", "Interaction records dropped on a full buffer", count(&c.StoreDrops))
		writeMetric(w, "petbot_ws_connections", "gauge", "Active WebSocket connections", count(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP petbot_overrides_total External overrides by result\n")
		fmt.Fprintf(w, "# TYPE petbot_overrides_total counter\n")
		fmt.Fprintf(w, "petbot_overrides_total{result=\"applied\"} %d\n", atomic.LoadInt64(&c.OverridesApplied))
		fmt.Fprintf(w, "petbot_overrides_total{result=\"rejected\"} %d\n\n", atomic.LoadInt64(&c.OverridesRejected))

		fmt.Fprintf(w, "# HELP petbot_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE petbot_ws_messages_total counter\n")
		fmt.Fprintf(w, "petbot_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "petbot_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}

// Handler serves the global collector as JSON.
func Handler() http.HandlerFunc {
	return collector.Handler()
}

// PrometheusHandler serves the global collector in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return collector.PrometheusHandler()
}
