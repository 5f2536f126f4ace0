// Package dispatch handles administrative requests: it admits and retires
// VF documents, answers queries and adjusts the daemon's run-time settings.
package dispatch

import "strings"

// Kind is the type of an administrative request.
type Kind int

const (
	KindUnknown Kind = iota
	KindPing
	KindAdd
	KindDelete
	KindShow
	KindVerbose
	KindDump
	KindCPUAlarm
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindPing:     "ping",
	KindAdd:      "add",
	KindDelete:   "delete",
	KindShow:     "show",
	KindVerbose:  "verbose",
	KindDump:     "dump",
	KindCPUAlarm: "cpu_alarm",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps an action to a request kind. Only the first letter is
// significant, so "del" and "delete" are the same request; "dump" must be
// spelled out since it shares its initial with delete.
func ParseKind(action string) Kind {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		return KindUnknown
	}
	switch action[0] {
	case 'a':
		return KindAdd
	case 'c':
		return KindCPUAlarm
	case 'd':
		if action == "dump" {
			return KindDump
		}
		return KindDelete
	case 'p':
		return KindPing
	case 's':
		return KindShow
	case 'v':
		return KindVerbose
	}
	return KindUnknown
}

// Request is one decoded administrative request.
type Request struct {
	Kind      Kind
	Action    string
	Resource  string
	ReplyFifo string
	LogLevel  int
	RequestID string
}

// Response is the single reply to a request. Message is split into lines.
type Response struct {
	OK        bool
	Message   []string
	RequestID string
}

// State is the wire form of OK.
func (r Response) State() string {
	if r.OK {
		return "OK"
	}
	return "ERROR"
}

func ok(rid string, lines ...string) Response {
	return Response{OK: true, Message: lines, RequestID: rid}
}

func fail(rid string, lines ...string) Response {
	return Response{Message: lines, RequestID: rid}
}
