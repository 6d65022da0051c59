package network

import (
	"net"

	"github.com/rs/zerolog"

	"github.com/lixenwraith/keel/core"
	"github.com/lixenwraith/keel/event"
)

// Writer serializes outbound datagram sends onto a dedicated event
// loop so no gameplay goroutine ever blocks on a socket. Send failures
// are logged and counted, never propagated: telemetry is droppable by
// definition, which is also why producers are expected to consult
// CheckPushSafety and shed rather than queue unboundedly.
type Writer struct {
	ctx  *core.Context
	log  zerolog.Logger
	loop *event.Loop

	conns map[string]*net.UDPConn
}

func NewWriter(ctx *core.Context) *Writer {
	w := &Writer{
		ctx:   ctx,
		log:   ctx.Log.With().Str("sys", "network").Logger(),
		loop:  event.New(ctx, "network-write"),
		conns: make(map[string]*net.UDPConn),
	}
	return w
}

// Loop exposes the writer's EventLoop.
func (w *Writer) Loop() *event.Loop { return w.loop }

// CheckPushSafety reports whether the write loop can absorb more
// traffic; callers drop low-value sends when it cannot.
func (w *Writer) CheckPushSafety() bool {
	return w.loop.CheckPushSafety()
}

// PushSend queues one datagram to addr ("host:port"). Safe from any
// goroutine; the payload must not be reused by the caller afterward.
func (w *Writer) PushSend(payload []byte, addr string) {
	w.loop.PushCall(func() { w.send(payload, addr) })
}

func (w *Writer) send(payload []byte, addr string) {
	conn := w.conns[addr]
	if conn == nil {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			w.ctx.Status.TelemetryErrors.Inc()
			w.log.Error().Err(err).Str("addr", addr).Msg("bad telemetry address")
			return
		}
		conn, err = net.DialUDP("udp", nil, udpAddr)
		if err != nil {
			w.ctx.Status.TelemetryErrors.Inc()
			w.log.Error().Err(err).Str("addr", addr).Msg("telemetry dial failed")
			return
		}
		w.conns[addr] = conn
	}

	if _, err := conn.Write(payload); err != nil {
		w.ctx.Status.TelemetryErrors.Inc()
		w.log.Warn().Err(err).Str("addr", addr).Msg("telemetry send failed")
		return
	}
	w.ctx.Status.TelemetrySends.Inc()
}

// Shutdown closes sockets and stops the loop.
func (w *Writer) Shutdown() {
	w.loop.PushCall(func() {
		for _, c := range w.conns {
			c.Close()
		}
		w.conns = nil
	})
	w.loop.PushShutdown()
	w.loop.Join()
}
