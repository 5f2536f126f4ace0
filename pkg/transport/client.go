package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/newtron-network/vfd/pkg/dispatch"
)

// DefaultTimeout bounds how long a client waits for a response.
const DefaultTimeout = 30 * time.Second

// Client sends requests to a running daemon.
type Client struct {
	Fifo    string
	Timeout time.Duration
	// TempDir holds per-request reply pipes; os.TempDir() when empty.
	TempDir string
}

// NewClient returns a client for the daemon listening on fifo.
func NewClient(fifo string) *Client {
	return &Client{Fifo: fifo, Timeout: DefaultTimeout}
}

// Do sends one request and waits for its response. A request id is
// generated when params has none, and a private reply pipe is created
// for the exchange and removed afterwards.
func (c *Client) Do(ctx context.Context, action string, params Params) (dispatch.Response, error) {
	if params.RequestID == "" {
		params.RequestID = uuid.NewString()
	}
	dir := c.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	reply := filepath.Join(dir, "iplex."+params.RequestID)
	if err := EnsureFifo(reply); err != nil {
		return dispatch.Response{}, err
	}
	defer os.Remove(reply)
	params.ReplyFifo = reply

	// the reply pipe is open before the request goes out so the daemon's
	// non-blocking open finds a reader
	rf, err := os.OpenFile(reply, os.O_RDWR, 0)
	if err != nil {
		return dispatch.Response{}, err
	}
	defer rf.Close()

	if err := c.send(WireRequest{Action: action, Params: params}); err != nil {
		return dispatch.Response{}, err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := rf.SetReadDeadline(deadline); err != nil {
		return dispatch.Response{}, err
	}
	stop := context.AfterFunc(ctx, func() { _ = rf.SetReadDeadline(time.Now()) })
	defer stop()

	data, err := readMessage(rf)
	if err != nil {
		if ctx.Err() != nil {
			return dispatch.Response{}, ctx.Err()
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return dispatch.Response{}, fmt.Errorf("no response from vfd within %s", timeout)
		}
		return dispatch.Response{}, err
	}
	return DecodeResponse(data)
}

func (c *Client) send(w WireRequest) error {
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	fd, err := unix.Open(c.Fifo, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) {
			return fmt.Errorf("vfd is not reading %s; is it running?", c.Fifo)
		}
		return fmt.Errorf("opening %s: %w", c.Fifo, err)
	}
	defer unix.Close(fd)
	// a request smaller than PIPE_BUF is written atomically
	_, err = unix.Write(fd, append(data, '\n'))
	return err
}

// readMessage reads until the end-of-message marker.
func readMessage(f *os.File) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 4096)
	for {
		n, err := f.Read(chunk)
		buf.Write(chunk[:n])
		if bytes.Contains(buf.Bytes(), []byte(EOM)) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}
