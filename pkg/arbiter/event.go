// Package arbiter decides whether a request raised by a guest VF driver
// through the PF mailbox may go ahead, against the same policy state the
// administrative requests use.
package arbiter

import "fmt"

// Kind is the mailbox message a VF sent.
type Kind int

const (
	Unknown Kind = iota
	Reset
	SetDefaultMac
	SetMulticast
	SetVlan
	SetMtu
	SetSecondaryMac
	ApiNegotiate
	GetQueues
	UpdateXcastMode
)

var kindNames = map[Kind]string{
	Unknown:         "unknown",
	Reset:           "reset",
	SetDefaultMac:   "set_mac",
	SetMulticast:    "set_multicast",
	SetVlan:         "set_vlan",
	SetMtu:          "set_mtu",
	SetSecondaryMac: "set_macvlan",
	ApiNegotiate:    "api_negotiate",
	GetQueues:       "get_queues",
	UpdateXcastMode: "update_xcast_mode",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Decision is the answer given back to the PF driver.
type Decision int

const (
	// Proceed lets the driver carry out the request.
	Proceed Decision = iota
	// NoopAck acknowledges without acting.
	NoopAck
	// NoopNack refuses.
	NoopNack
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case NoopAck:
		return "noop_ack"
	default:
		return "noop_nack"
	}
}

// Event is one mailbox message. MAC carries the address bytes of the MAC
// messages; Value carries the VLAN id or the requested MTU.
type Event struct {
	Kind  Kind
	PCIID string
	VF    int
	MAC   []byte
	Value int
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s/%d", e.Kind, e.PCIID, e.VF)
}

// Result is the arbiter's answer. Err is set, wrapping
// util.ErrEventRejected, whenever Decision is NoopNack.
type Result struct {
	Decision Decision
	Err      error
}
