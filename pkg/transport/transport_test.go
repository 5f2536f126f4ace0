package transport

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/vfd/pkg/dispatch"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want dispatch.Request
	}{
		{
			name: "add with filename",
			in:   `{"action": "add", "params": {"filename": "vm1.json", "resource": "ignored", "r_fifo": "/tmp/r", "vfd_rid": "x1", "loglevel": 2}}`,
			want: dispatch.Request{Kind: dispatch.KindAdd, Action: "add", Resource: "vm1.json", ReplyFifo: "/tmp/r", LogLevel: 2, RequestID: "x1"},
		},
		{
			name: "show uses resource",
			in:   `{"action": "show", "params": {"resource": "all"}}`,
			want: dispatch.Request{Kind: dispatch.KindShow, Action: "show", Resource: "all"},
		},
		{
			name: "quoted loglevel",
			in:   `{"action": "verbose", "params": {"loglevel": "4"}}`,
			want: dispatch.Request{Kind: dispatch.KindVerbose, Action: "verbose", LogLevel: 4},
		},
		{
			name: "no params",
			in:   `{"action": "ping"}`,
			want: dispatch.Request{Kind: dispatch.KindPing, Action: "ping"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseRequest([]byte(`{"params": {}}`))
	assert.ErrorContains(t, err, "no action")
	_, err = ParseRequest([]byte(`{"action": "verbose", "params": {"loglevel": "loud"}}`))
	assert.Error(t, err)
	_, err = ParseRequest([]byte(`{`))
	assert.Error(t, err)
}

func TestEncodeResponse(t *testing.T) {
	data, err := EncodeResponse(dispatch.Response{OK: true, Message: []string{"PF  PCIID", "0   <none>"}, RequestID: "r9"})
	require.NoError(t, err)
	assert.Equal(t,
		`{"action":"response","vfd_rid":"r9","state":"OK","msg":["PF  PCIID","0   <none>"]}`+"\n@eom@\n",
		string(data))

	data, err = EncodeResponse(dispatch.Response{})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"vfd_rid":"not-supplied","state":"ERROR","msg":[]`)

	resp, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, NoRequestID, resp.RequestID)
}

func TestDecodeResponse_Errors(t *testing.T) {
	_, err := DecodeResponse([]byte(`{"action":"request"}` + EOM))
	assert.ErrorContains(t, err, "unexpected message action")
	_, err = DecodeResponse([]byte(`{"action":`))
	assert.Error(t, err)
}

func TestServe_SkipsBadInput(t *testing.T) {
	pr, pw := io.Pipe()
	out := make(chan dispatch.Request, 4)
	done := make(chan error, 1)
	go func() { done <- serve(context.Background(), pr, out) }()

	for _, chunk := range []string{
		`{"action": "ping", "params": {"vfd_rid": "1"}}` + "\n",
		"garbage\n",
		`{"params": {"vfd_rid": "no-action"}}` + "\n",
		`{"action": "show", "params": {"resource": "pfs", "vfd_rid": "2"}}` + "\n",
	} {
		_, err := pw.Write([]byte(chunk))
		require.NoError(t, err)
	}
	require.NoError(t, pw.Close())
	require.NoError(t, <-done)
	close(out)

	var rids []string
	for r := range out {
		rids = append(rids, r.RequestID)
	}
	assert.Equal(t, []string{"1", "2"}, rids)
}

func TestEnsureFifo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "request")
	require.NoError(t, EnsureFifo(path))
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeNamedPipe)
	assert.NoError(t, EnsureFifo(path), "existing fifo is reused")

	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, nil, 0o644))
	assert.ErrorContains(t, EnsureFifo(plain), "not a fifo")
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := Listen(filepath.Join(dir, "request"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reqs := make(chan dispatch.Request)
	served := make(chan error, 1)
	go func() { served <- l.Serve(ctx, reqs) }()

	replier := NewReplier()
	go func() {
		for req := range reqs {
			resp := dispatch.Response{OK: true, RequestID: req.RequestID, Message: []string{"pong: " + req.Action, "line two"}}
			_ = replier.Respond(ctx, req, resp)
		}
	}()

	c := &Client{Fifo: l.Path(), Timeout: 5 * time.Second, TempDir: dir}
	resp, err := c.Do(ctx, "ping", Params{RequestID: "rt-1"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "rt-1", resp.RequestID)
	assert.Equal(t, []string{"pong: ping", "line two"}, resp.Message)

	_, err = os.Stat(filepath.Join(dir, "iplex.rt-1"))
	assert.True(t, os.IsNotExist(err), "reply fifo removed")

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestClient_NoDaemon(t *testing.T) {
	dir := t.TempDir()
	fifo := filepath.Join(dir, "request")
	require.NoError(t, EnsureFifo(fifo))

	c := &Client{Fifo: fifo, Timeout: time.Second, TempDir: dir}
	_, err := c.Do(context.Background(), "ping", Params{})
	assert.ErrorContains(t, err, "is it running")
}

func TestClient_Timeout(t *testing.T) {
	dir := t.TempDir()
	fifo := filepath.Join(dir, "request")
	require.NoError(t, EnsureFifo(fifo))
	// a reader that never answers
	sink, err := os.OpenFile(fifo, os.O_RDWR, 0)
	require.NoError(t, err)
	defer sink.Close()

	c := &Client{Fifo: fifo, Timeout: 200 * time.Millisecond, TempDir: dir}
	_, err = c.Do(context.Background(), "ping", Params{})
	assert.ErrorContains(t, err, "no response from vfd")
}

func TestReplier(t *testing.T) {
	r := NewReplier()
	assert.NoError(t, r.Respond(context.Background(), dispatch.Request{}, dispatch.Response{OK: true}),
		"no reply fifo is not an error")

	fifo := filepath.Join(t.TempDir(), "reply")
	require.NoError(t, EnsureFifo(fifo))
	err := r.Respond(context.Background(), dispatch.Request{ReplyFifo: fifo}, dispatch.Response{OK: true})
	assert.ErrorContains(t, err, "open failed", "nobody reading")
}
