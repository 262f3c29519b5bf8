package uds

import (
	"fmt"
	"net"
	"time"
)

type Client struct {
	socketPath string
	timeout    time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}
}

func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to connect to daemon at %s: %w\n"+
				"Is the daemon running? Start it with: headfix daemon",
			c.socketPath, err,
		)
	}
	return conn, nil
}

func (c *Client) Send(req *Request) (*Response, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &resp, nil
}

func (c *Client) SendCommand(command string, params any) (*Response, error) {
	req, err := NewRequest(command, params)
	if err != nil {
		return nil, err
	}
	return c.Send(req)
}

// Stream sends a streaming command and passes every follow-up frame to fn
// until the server closes the connection or fn returns an error. The
// client timeout applies to the dial and the initial ack only.
func (c *Client) Stream(command string, params any, fn func(*Response) error) error {
	req, err := NewRequest(command, params)
	if err != nil {
		return err
	}

	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))
	if err := WriteFrame(conn, req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var ack Response
	if err := ReadFrame(conn, &ack); err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if !ack.Success {
		if ack.Error != nil {
			return fmt.Errorf("%s: %s", ack.Error.Code, ack.Error.Message)
		}
		return fmt.Errorf("stream rejected")
	}

	_ = conn.SetDeadline(time.Time{})

	for {
		var frame Response
		if err := ReadFrame(conn, &frame); err != nil {
			// Server closing the stream ends the watch, not an error
			// the caller can act on.
			return nil
		}
		if err := fn(&frame); err != nil {
			return err
		}
	}
}
