package server

import (
	"fmt"
	"net"
	"time"
)

// Client is a minimal wire protocol client used by the CLI and by tests.
type Client struct {
	conn          net.Conn
	timeout       time.Duration
	maxFrameBytes int
}

// Dial connects to a pharmacore server.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, timeout: timeout, maxFrameBytes: 8 << 20}, nil
}

// Do sends one request and waits for its response.
func (c *Client) Do(req Request) (Response, error) {
	payload, err := EncodeRequest(req)
	if err != nil {
		return Response{}, err
	}
	_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	if err := WriteFrame(c.conn, payload); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	raw, err := ReadFrame(c.conn, c.maxFrameBytes)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return DecodeResponse(raw)
}

// Close tears down the connection.
func (c *Client) Close() error { return c.conn.Close() }
