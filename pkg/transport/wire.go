// Package transport carries administrative requests and responses over
// named pipes: one JSON object per request on the daemon's pipe, and one
// JSON response terminated by an end-of-message marker on the pipe named
// by the requester.
package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/newtron-network/vfd/pkg/dispatch"
)

// EOM ends every response written to a reply pipe.
const EOM = "@eom@"

// NoRequestID is sent back when the request carried no id.
const NoRequestID = "not-supplied"

// Params is the parameter block of a request.
type Params struct {
	Filename  string   `json:"filename,omitempty"`
	Resource  string   `json:"resource,omitempty"`
	LogLevel  LogLevel `json:"loglevel,omitempty"`
	ReplyFifo string   `json:"r_fifo,omitempty"`
	RequestID string   `json:"vfd_rid,omitempty"`
}

// WireRequest is a request as it appears on the daemon's pipe.
type WireRequest struct {
	Action string `json:"action"`
	Params Params `json:"params"`
}

// WireResponse is a response as it appears on a reply pipe.
type WireResponse struct {
	Action    string   `json:"action"`
	RequestID string   `json:"vfd_rid"`
	State     string   `json:"state"`
	Msg       []string `json:"msg"`
}

// LogLevel accepts a number or a quoted number.
type LogLevel int

func (l *LogLevel) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*l = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("loglevel: %q is not a number", s)
	}
	*l = LogLevel(f)
	return nil
}

// ToRequest converts a wire request. The resource is taken from filename,
// or from resource when there is no filename.
func (w *WireRequest) ToRequest() (dispatch.Request, error) {
	if strings.TrimSpace(w.Action) == "" {
		return dispatch.Request{}, fmt.Errorf("request has no action")
	}
	res := w.Params.Filename
	if res == "" {
		res = w.Params.Resource
	}
	return dispatch.Request{
		Kind:      dispatch.ParseKind(w.Action),
		Action:    w.Action,
		Resource:  res,
		ReplyFifo: w.Params.ReplyFifo,
		LogLevel:  int(w.Params.LogLevel),
		RequestID: w.Params.RequestID,
	}, nil
}

// ParseRequest decodes one request object.
func ParseRequest(data []byte) (dispatch.Request, error) {
	var w WireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return dispatch.Request{}, fmt.Errorf("decoding request: %w", err)
	}
	return w.ToRequest()
}

// EncodeResponse renders resp for a reply pipe, including the trailing
// end-of-message marker.
func EncodeResponse(resp dispatch.Response) ([]byte, error) {
	w := WireResponse{
		Action:    "response",
		RequestID: resp.RequestID,
		State:     resp.State(),
		Msg:       resp.Message,
	}
	if w.RequestID == "" {
		w.RequestID = NoRequestID
	}
	if w.Msg == nil {
		w.Msg = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, err
	}
	buf.WriteString(EOM + "\n")
	return buf.Bytes(), nil
}

// DecodeResponse parses a response read from a reply pipe. Anything after
// the end-of-message marker is ignored.
func DecodeResponse(data []byte) (dispatch.Response, error) {
	if i := bytes.Index(data, []byte(EOM)); i >= 0 {
		data = data[:i]
	}
	var w WireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return dispatch.Response{}, fmt.Errorf("decoding response: %w", err)
	}
	if w.Action != "response" {
		return dispatch.Response{}, fmt.Errorf("unexpected message action %q", w.Action)
	}
	return dispatch.Response{OK: w.State == "OK", Message: w.Msg, RequestID: w.RequestID}, nil
}
