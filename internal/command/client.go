package command

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// Client is a control connection to a transmitter.
type Client struct {
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to a transmitter control port.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	if timeout == 0 {
		timeout = 10 * time.Second // Default timeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to transmitter %s: %w", addr, err)
	}
	return &Client{
		timeout: timeout,
		conn:    conn,
		reader:  bufio.NewReader(conn),
	}, nil
}

// Call sends one command line and returns the reply without its newline.
func (c *Client) Call(ctx context.Context, line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if _, err := c.conn.Write([]byte(line + lineEnding)); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}

	reply, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read reply: %w", err)
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

// Start issues a start command. A reply other than OK is returned as an error.
func (c *Client) Start(ctx context.Context, req StartRequest) error {
	return c.expectOK(ctx, req.String())
}

// Stop issues a stop command.
func (c *Client) Stop(ctx context.Context) error {
	return c.expectOK(ctx, VerbStop)
}

func (c *Client) expectOK(ctx context.Context, line string) error {
	reply, err := c.Call(ctx, line)
	if err != nil {
		return err
	}
	if reply != ReplyOK {
		return fmt.Errorf("transmitter replied: %s", reply)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
