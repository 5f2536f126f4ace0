// Package audit records every administrative request the daemon handles.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is one administrative request and its outcome.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	RequestID string        `json:"vfd_rid,omitempty"`
	Action    string        `json:"action"`
	Resource  string        `json:"resource,omitempty"`
	Port      string        `json:"pciid,omitempty"`
	VF        int           `json:"vfid"`
	Owner     int           `json:"owner"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	NoHarm    bool          `json:"no_harm,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Filter selects events from the log.
type Filter struct {
	Action      string
	Port        string
	RequestID   string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates an event stamped now. VF is -1 until WithVF is called.
func NewEvent(action, resource string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Action:    action,
		Resource:  resource,
		VF:        -1,
	}
}

// WithRequestID sets the client's request id.
func (e *Event) WithRequestID(rid string) *Event {
	e.RequestID = rid
	return e
}

// WithVF records the VF the request named.
func (e *Event) WithVF(pciid string, vfid, owner int) *Event {
	e.Port = pciid
	e.VF = vfid
	e.Owner = owner
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets how long the request took.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithNoHarm marks requests handled while hardware programming is
// disabled.
func (e *Event) WithNoHarm(on bool) *Event {
	e.NoHarm = on
	return e
}
