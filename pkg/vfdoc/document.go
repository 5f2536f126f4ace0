// Package vfdoc decodes the per-VF JSON configuration document into a typed
// value. Defaults for omitted fields are applied here so that nothing past
// the boundary ever looks a field up by name.
package vfdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/util"
)

// Document is one VF configuration file.
type Document struct {
	// Owner is the uid that owns the file; it is not part of the JSON.
	Owner int `json:"-"`

	Name  string
	PCIID string
	// VFID is -1 when the document carried no usable id.
	VFID int

	MACAntiSpoof  bool
	VLANAntiSpoof bool
	AllowUntagged bool
	StripSTag     bool
	StripCTag     bool
	InsertSTag    bool
	AllowBcast    bool
	AllowMcast    bool
	AllowUnUcast  bool

	LinkStatus string
	Rate       float64
	MinRate    float64

	StartCB string
	StopCB  string

	VLANs []int
	MACs  []string
	VMMAC string

	Queues []Queue
}

// Queue assigns a share of one traffic class to the VF.
type Queue struct {
	Priority int   `json:"priority"`
	Share    Share `json:"share"`
}

// Share is a percentage given either as a number or as a string such as
// "25%".
type Share int

// UnmarshalJSON accepts 25, 25.0, "25" and "25%".
func (s *Share) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*s = Share(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.Errorf("share must be a number or a percentage string, got %s", string(b))
	}
	v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(str), "%"))
	if err != nil {
		return errors.Wrapf(err, "bad share %q", str)
	}
	*s = Share(v)
	return nil
}

// VLANList decodes an array of VLAN ids. A string element may hold a
// range such as "100-103". Elements that are neither become -1 so admission
// rejects them with an id in the message rather than the whole document
// failing to parse.
type VLANList []int

// UnmarshalJSON implements json.Unmarshaler.
func (l *VLANList) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "vlans must be an array")
	}
	out := make(VLANList, 0, len(raw))
	for _, r := range raw {
		var s string
		if json.Unmarshal(r, &s) == nil {
			ids, err := util.ParseRange(s, model.MaxVFVlans+1)
			if err != nil || len(ids) == 0 {
				out = append(out, -1)
				continue
			}
			out = append(out, ids...)
			continue
		}
		var f float64
		if err := json.Unmarshal(r, &f); err != nil || f != math.Trunc(f) {
			out = append(out, -1)
			continue
		}
		out = append(out, int(f))
	}
	*l = out
	return nil
}

// wire mirrors the JSON. Pointers distinguish "absent" from "false".
type wire struct {
	Name          string   `json:"name"`
	PCIID         string   `json:"pciid"`
	VFID          *float64 `json:"vfid"`
	MACAntiSpoof  *bool    `json:"mac_anti_spoof"`
	VLANAntiSpoof *bool    `json:"vlan_anti_spoof"`
	AllowUntagged *bool    `json:"allow_untagged"`
	StripSTag     *bool    `json:"strip_stag"`
	StripCTag     *bool    `json:"strip_ctag"`
	InsertSTag    *bool    `json:"insert_stag"`
	AllowBcast    *bool    `json:"allow_bcast"`
	AllowMcast    *bool    `json:"allow_mcast"`
	AllowUnUcast  *bool    `json:"allow_un_ucast"`
	LinkStatus    string   `json:"link_status"`
	Rate          float64  `json:"rate"`
	MinRate       float64  `json:"min_rate"`
	StartCB       string   `json:"start_cb"`
	StopCB        string   `json:"stop_cb"`
	VLANs         VLANList `json:"vlans"`
	MACs          []string `json:"macs"`
	MAC           string   `json:"mac"`
	VMMAC         string   `json:"vm_mac"`
	Queues        []Queue  `json:"queues"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Decode reads one document from r.
func Decode(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading document")
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes one document.
func DecodeBytes(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("document is empty")
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrap(err, "parsing document")
	}

	d := &Document{
		Name:          w.Name,
		PCIID:         strings.TrimSpace(w.PCIID),
		VFID:          -1,
		MACAntiSpoof:  boolOr(w.MACAntiSpoof, true),
		VLANAntiSpoof: boolOr(w.VLANAntiSpoof, true),
		AllowUntagged: boolOr(w.AllowUntagged, false),
		StripSTag:     boolOr(w.StripSTag, false),
		StripCTag:     boolOr(w.StripCTag, false),
		AllowBcast:    boolOr(w.AllowBcast, true),
		AllowMcast:    boolOr(w.AllowMcast, true),
		AllowUnUcast:  boolOr(w.AllowUnUcast, true),
		LinkStatus:    w.LinkStatus,
		Rate:          w.Rate,
		MinRate:       w.MinRate,
		StartCB:       w.StartCB,
		StopCB:        w.StopCB,
		VLANs:         []int(w.VLANs),
		MACs:          w.MACs,
		VMMAC:         w.VMMAC,
		Queues:        w.Queues,
	}
	// insert follows strip unless the document says otherwise
	d.InsertSTag = boolOr(w.InsertSTag, d.StripSTag)
	if w.VFID != nil && *w.VFID == math.Trunc(*w.VFID) {
		d.VFID = int(*w.VFID)
	}
	if d.LinkStatus == "" {
		d.LinkStatus = "auto"
	}
	if w.MAC != "" && len(d.MACs) == 0 {
		d.MACs = []string{w.MAC}
	}
	return d, nil
}

// QShares folds the queue list into a per-class share array.
func (d *Document) QShares() ([model.MaxTCs]int, error) {
	var out [model.MaxTCs]int
	for _, q := range d.Queues {
		if q.Priority < 0 || q.Priority >= model.MaxTCs {
			return out, fmt.Errorf("queue priority %d out of range 0-%d", q.Priority, model.MaxTCs-1)
		}
		if q.Share < 0 || q.Share > 100 {
			return out, fmt.Errorf("queue share %d%% for priority %d out of range", int(q.Share), q.Priority)
		}
		out[q.Priority] = int(q.Share)
	}
	return out, nil
}

// Problems lists syntax-level issues that make the document unusable for
// an add. It does not consult any port state.
func (d *Document) Problems() []string {
	var out []string
	if d.PCIID == "" {
		out = append(out, "pciid is missing")
	}
	if d.VFID < 0 {
		out = append(out, "vfid is missing or negative")
	}
	if d.Name == "" {
		out = append(out, "name is missing")
	}
	if _, ok := model.ParseLinkMode(d.LinkStatus); !ok {
		out = append(out, fmt.Sprintf("link_status %q not recognised, auto will be used", d.LinkStatus))
	}
	if _, err := d.QShares(); err != nil {
		out = append(out, err.Error())
	}
	return out
}
