package admission

import (
	"errors"
	"fmt"

	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/util"
	"github.com/newtron-network/vfd/pkg/vfdoc"
)

// Delete marks the VF named by doc for teardown.
//
// remove retires the backing document. It runs without the store lock and
// before the slot is marked, so a crash in between leaves nothing that a
// restart could resurrect. A document naming an unknown port or VF is
// still retired; one whose name does not match the VF is left alone.
func (v *Validator) Delete(doc *vfdoc.Document, source string, remove func() error) (*model.VFConfig, error) {
	vf, err := v.lookupForDelete(doc, source)
	if err != nil {
		util.WithField("source", source).Infof("no config change related to del request: %v", err)
		var mismatch *nameMismatchError
		if !errors.As(err, &mismatch) {
			if rerr := remove(); rerr != nil {
				util.WithField("source", source).Warnf("unable to retire config file: %v", rerr)
			}
		}
		return nil, err
	}

	if err := remove(); err != nil {
		return nil, util.NewInternalError("retiring config file", err)
	}

	err = v.store.Update(func() error {
		port, err := v.store.FindPort(doc.PCIID)
		if err != nil {
			return err
		}
		return v.store.MarkDeleted(port, doc.VFID)
	})
	if err != nil {
		return nil, util.NewInternalError("mark deleted", err)
	}
	util.WithVF(doc.PCIID, doc.VFID).Infof("vf internal config was deleted: %s", doc.Name)
	return vf, nil
}

func (v *Validator) lookupForDelete(doc *vfdoc.Document, source string) (*model.VFConfig, error) {
	var vf *model.VFConfig
	err := v.store.Update(func() error {
		if doc.PCIID == "" || doc.VFID < 0 {
			return util.NewValidationError(fmt.Sprintf("invalid configuration contents in file: %s", source))
		}
		port, err := v.store.FindPort(doc.PCIID)
		if err != nil {
			return portNotFound(doc)
		}
		found := port.VF(doc.VFID)
		if found == nil {
			return &util.NotFoundError{Kind: "vf", Name: fmt.Sprintf("%s/%d", doc.PCIID, doc.VFID),
				Reason: fmt.Sprintf("%s: vf %d not configured on port %s", doc.Name, doc.VFID, doc.PCIID)}
		}
		if found.Name != doc.Name {
			return &nameMismatchError{util.ValidationError{Errors: []string{fmt.Sprintf(
				"%s: name in config did not match name given when VF was added: expected %s, found %s",
				doc.Name, found.Name, doc.Name)}}}
		}
		vf = found
		return nil
	})
	return vf, err
}

// nameMismatchError rejects a delete whose document does not carry the
// name recorded at add. The document is kept.
type nameMismatchError struct {
	util.ValidationError
}
