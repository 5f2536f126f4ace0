package testutil

import (
	"fmt"
	"testing"

	"github.com/newtron-network/vfd/pkg/configstore"
	"github.com/newtron-network/vfd/pkg/macreg"
	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/vfdoc"
)

// Standard port ids used across unit tests.
const (
	PCI0 = "0000:07:00.0"
	PCI1 = "0000:07:00.1"
)

// Port returns an empty 4 TC port with a 9000 byte MTU.
func Port(pciid string, nvfs int) *model.PortConfig {
	return model.NewPort(pciid, "pf-"+pciid[len(pciid)-3:], 9000, 4, nvfs)
}

// Env returns a store over two 32 VF ports and an empty MAC registry.
func Env() (*configstore.Store, *macreg.Registry) {
	return configstore.New([]*model.PortConfig{Port(PCI0, 32), Port(PCI1, 32)}), macreg.New()
}

// Doc decodes a minimal document for vfid on pciid with one VLAN,
// applying the usual decode defaults. extra is spliced into the JSON
// object, e.g. `"macs": ["02:00:00:00:00:01"]`.
func Doc(t *testing.T, pciid string, vfid int, extra string) *vfdoc.Document {
	t.Helper()
	body := fmt.Sprintf(`{"name": "vm-%d", "pciid": %q, "vfid": %d`, vfid, pciid, vfid)
	if extra != "" {
		body += ", " + extra
	} else {
		body += fmt.Sprintf(`, "vlans": [%d]`, 100+vfid)
	}
	body += "}"
	d, err := vfdoc.DecodeBytes([]byte(body))
	if err != nil {
		t.Fatalf("decoding fixture document %s: %v", body, err)
	}
	return d
}

// MAC returns a locally administered unicast address unique to (port, vf, n).
func MAC(port, vf, n int) string {
	return fmt.Sprintf("02:00:%02x:%02x:%02x:01", port, vf, n)
}
