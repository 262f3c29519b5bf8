package daemon

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
)

// openPort opens the host serial link. The "sim" device runs the rig with no
// host attached; telemetry still reaches bus subscribers.
func openPort(cfg model.SerialConfig) (io.ReadWriteCloser, error) {
	if cfg.Device == "sim" {
		return newNullPort(), nil
	}
	return serial.OpenPort(&serial.Config{Name: cfg.Device, Baud: cfg.Baud})
}

// nullPort stands in for the host link. Reads block until Close; writes
// succeed and vanish.
type nullPort struct {
	once   sync.Once
	closed chan struct{}
}

func newNullPort() *nullPort {
	return &nullPort{closed: make(chan struct{})}
}

func (p *nullPort) Read(b []byte) (int, error) {
	<-p.closed
	return 0, io.EOF
}

func (p *nullPort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
		return len(b), nil
	}
}

func (p *nullPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// serialLoop ships host bytes to the tick loop. The port read blocks with no
// deadline support, so it runs in its own goroutine and the loop drains it;
// shutdown closes the port out from under the read to unblock it.
func (d *Daemon) serialLoop(ctx context.Context) error {
	type chunk struct {
		data []byte
		err  error
	}
	reads := make(chan chunk)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := d.port.Read(buf)
			var data []byte
			if n > 0 {
				data = make([]byte, n)
				copy(data, buf[:n])
			}
			select {
			case reads <- chunk{data, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				// The rig keeps ticking without a host. Back off so a dead
				// device does not spin this goroutine.
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch := <-reads:
			if len(ch.data) > 0 {
				select {
				case d.serialIn <- ch.data:
				default:
					d.log(LogLevelWarn, "serial input full, dropping %d bytes", len(ch.data))
				}
			}
			if ch.err != nil {
				d.log(LogLevelWarn, "serial read: %v", ch.err)
			}
		}
	}
}
