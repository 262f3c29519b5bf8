package daemon

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/protocol"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/telemetry"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/uds"
)

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.CmdPing, d.handlePing)
	d.server.Handle(uds.CmdStatus, d.handleStatus)
	d.server.Handle(uds.CmdSessionStart, d.enqueueHandler(protocol.SessionStart{}))
	d.server.Handle(uds.CmdSessionStop, d.enqueueHandler(protocol.SessionStop{}))
	d.server.Handle(uds.CmdEmergencyRelease, d.enqueueHandler(protocol.EmergencyRelease{}))
	d.server.Handle(uds.CmdShutdown, d.handleShutdown)
	d.server.HandleStream(uds.CmdWatch, d.handleWatch)
}

func (d *Daemon) handlePing(req *uds.Request) *uds.Response {
	return uds.SuccessResponse(map[string]any{
		"pong": true,
		"rig":  d.config.Rig.Name,
		"pid":  os.Getpid(),
	})
}

func (d *Daemon) handleStatus(req *uds.Request) *uds.Response {
	return uds.SuccessResponse(d.snapshot())
}

// enqueueHandler queues a mutation for the tick loop. Success means
// accepted, not applied; the tick loop picks it up within one period.
func (d *Daemon) enqueueHandler(cmd protocol.Command) uds.HandlerFunc {
	return func(req *uds.Request) *uds.Response {
		if err := d.Enqueue(cmd); err != nil {
			return uds.ErrorResponse(uds.ErrCodeStateConflict, err.Error())
		}
		return uds.SuccessResponse(map[string]string{"result": "accepted"})
	}
}

func (d *Daemon) handleShutdown(req *uds.Request) *uds.Response {
	d.log(LogLevelInfo, "shutdown requested over control socket")
	go d.Shutdown()
	return uds.SuccessResponse(map[string]string{"result": "shutting down"})
}

// watchFrame is one telemetry line as streamed to a watch client.
type watchFrame struct {
	Kind string `json:"kind"`
	Line string `json:"line"`
	At   string `json:"at"`
}

// handleWatch streams every telemetry line to the client until it
// disconnects or the daemon stops.
func (d *Daemon) handleWatch(ctx context.Context, req *uds.Request, conn net.Conn) {
	if err := uds.WriteFrame(conn, uds.SuccessResponse(map[string]string{"result": "watching"})); err != nil {
		return
	}

	lines := make(chan telemetry.Message, 100)
	var unsubs []func()
	for _, kind := range telemetry.Kinds() {
		unsubs = append(unsubs, d.bus.Subscribe(kind, func(m telemetry.Message) {
			select {
			case lines <- m:
			default:
			}
		}))
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	// The client never writes after the request, so a read completing
	// means it hung up.
	gone := make(chan struct{})
	go func() {
		_, _ = conn.Read(make([]byte, 1))
		close(gone)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case m := <-lines:
			frame := watchFrame{Kind: string(m.Kind), Line: m.Line, At: m.At.Format(time.RFC3339Nano)}
			if err := uds.WriteFrame(conn, uds.SuccessResponse(frame)); err != nil {
				return
			}
		}
	}
}
