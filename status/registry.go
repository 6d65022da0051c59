package status

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the central metrics facade. Subsystems cache the handles
// they need at init and write from their own goroutines; collection
// happens on the debug HTTP scrape path.
type Registry struct {
	// Event loops
	LoopMessages    *prometheus.CounterVec // messages pushed, by loop
	LoopQueueDepth  *prometheus.GaugeVec   // queued thread messages, by loop
	LoopBacklogHits *prometheus.CounterVec // soft-threshold crossings, by loop

	// Frame pipeline
	FramesBuilt     prometheus.Counter
	FramesRecycled  prometheus.Counter
	FramePoolMisses prometheus.Counter
	ScreenMsgEvicts prometheus.Counter
	FadeWatchdog    prometheus.Counter

	// Input
	DevicesConnected prometheus.Gauge
	DevicesActive    prometheus.Gauge
	InputDrops       prometheus.Counter
	RingOverwrites   prometheus.Counter

	// Pause broadcast
	PauseWatchdog prometheus.Counter

	// Audio / network
	CuesPlayed      prometheus.Counter
	TelemetrySends  prometheus.Counter
	TelemetryErrors prometheus.Counter
}

// New registers all runtime collectors on reg and returns the facade.
func New(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	return &Registry{
		LoopMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "loop", Name: "messages_total",
			Help: "Thread messages pushed per event loop",
		}, []string{"loop"}),
		LoopQueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "keel", Subsystem: "loop", Name: "queue_depth",
			Help: "Thread messages currently queued per event loop",
		}, []string{"loop"}),
		LoopBacklogHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "loop", Name: "backlog_hits_total",
			Help: "Soft backlog threshold crossings per event loop",
		}, []string{"loop"}),
		FramesBuilt: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "graphics", Name: "frames_built_total",
			Help: "Frame defs assembled by the logic thread",
		}),
		FramesRecycled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "graphics", Name: "frames_recycled_total",
			Help: "Frame defs reclaimed into the recycle pool",
		}),
		FramePoolMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "graphics", Name: "frame_pool_misses_total",
			Help: "Frame def acquisitions that allocated fresh",
		}),
		ScreenMsgEvicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "graphics", Name: "screen_message_evictions_total",
			Help: "Screen messages evicted by cap or age",
		}),
		FadeWatchdog: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "graphics", Name: "fade_watchdog_total",
			Help: "Stuck fades force-completed by the watchdog",
		}),
		DevicesConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "keel", Subsystem: "input", Name: "devices_connected",
			Help: "Input devices currently registered",
		}),
		DevicesActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "keel", Subsystem: "input", Name: "devices_active",
			Help: "Input devices seen active in the trailing window",
		}),
		InputDrops: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "input", Name: "events_dropped_total",
			Help: "Input events dropped due to logic loop backlog",
		}),
		RingOverwrites: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "input", Name: "ring_overwrites_total",
			Help: "Unread raw input ring entries overwritten by producers",
		}),
		PauseWatchdog: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "loop", Name: "pause_watchdog_total",
			Help: "Pause broadcasts that missed the ack deadline",
		}),
		CuesPlayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "audio", Name: "cues_played_total",
			Help: "Audio cues mixed into the speaker",
		}),
		TelemetrySends: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "network", Name: "telemetry_sends_total",
			Help: "Telemetry datagrams written",
		}),
		TelemetryErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keel", Subsystem: "network", Name: "telemetry_errors_total",
			Help: "Telemetry datagram write failures",
		}),
	}
}
