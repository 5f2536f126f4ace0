package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/newtron-network/vfd/pkg/admission"
	"github.com/newtron-network/vfd/pkg/audit"
	"github.com/newtron-network/vfd/pkg/configstore"
	"github.com/newtron-network/vfd/pkg/docstore"
	"github.com/newtron-network/vfd/pkg/metrics"
	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/parms"
	"github.com/newtron-network/vfd/pkg/util"
	"github.com/newtron-network/vfd/pkg/version"
	"github.com/newtron-network/vfd/pkg/vfdoc"
)

// Enqueuer schedules a hardware sync for a VF. EnqueueNow skips the wait
// for the VF's queues to come up.
type Enqueuer interface {
	Enqueue(key model.VFKey) bool
	EnqueueNow(key model.VFKey) bool
}

// Responder delivers a response to the requester.
type Responder interface {
	Respond(ctx context.Context, req Request, resp Response) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, req Request, resp Response) error

func (f ResponderFunc) Respond(ctx context.Context, req Request, resp Response) error {
	return f(ctx, req, resp)
}

// Config wires a Dispatcher to the daemon's state.
type Config struct {
	Store   *configstore.Store
	Docs    *docstore.Store
	Admit   *admission.Validator
	Queue   Enqueuer
	Runtime *parms.Runtime
	// NoHarm is set when the daemon does not touch hardware.
	NoHarm bool
}

// Dispatcher handles administrative requests one at a time.
type Dispatcher struct {
	store  *configstore.Store
	docs   *docstore.Store
	admit  *admission.Validator
	queue  Enqueuer
	rt     *parms.Runtime
	noHarm bool
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		store:  cfg.Store,
		docs:   cfg.Docs,
		admit:  cfg.Admit,
		queue:  cfg.Queue,
		rt:     cfg.Runtime,
		noHarm: cfg.NoHarm,
	}
}

// Run handles requests until ctx is done or reqs is closed. A response
// that cannot be delivered is logged and dropped.
func (d *Dispatcher) Run(ctx context.Context, reqs <-chan Request, out Responder) error {
	log := util.WithComponent("dispatch")
	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-reqs:
			if !ok {
				return nil
			}
			resp := d.Handle(ctx, req)
			if err := out.Respond(ctx, req, resp); err != nil {
				log.WithField("vfd_rid", req.RequestID).Warnf("unable to deliver response to %s: %v", req.ReplyFifo, err)
			}
		}
	}
}

// Handle processes one request and returns its response. It never panics
// on bad input; every failure becomes an error response.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	restore := d.raiseLogLevel(req)
	defer restore()

	start := time.Now()
	ev := audit.NewEvent(req.Kind.String(), req.Resource).WithRequestID(req.RequestID).WithNoHarm(d.noHarm)

	var resp Response
	switch req.Kind {
	case KindPing:
		resp = ok(req.RequestID, fmt.Sprintf("pong: %s", version.Version))
	case KindAdd:
		resp = d.add(req, ev)
	case KindDelete:
		resp = d.del(req, ev)
	case KindShow:
		resp = d.show(req)
	case KindDump:
		dump(d.store.Snapshot())
		resp = ok(req.RequestID, "dump captured in the log")
	case KindVerbose:
		resp = d.verbose(req)
	case KindCPUAlarm:
		resp = d.cpuAlarm(req)
	default:
		util.WithComponent("dispatch").Debugf("unrecognised request action %q", req.Action)
		resp = fail(req.RequestID, "dummy request handler: urrecognised request.")
	}

	metrics.RequestsTotal.WithLabelValues(req.Kind.String(), resp.State()).Inc()
	if req.Kind == KindAdd || req.Kind == KindDelete {
		ev.WithDuration(time.Since(start))
		if resp.OK {
			ev.WithSuccess()
		} else if len(resp.Message) > 0 {
			ev.WithError(fmt.Errorf("%s", resp.Message[0]))
		}
		if err := audit.Log(ev); err != nil {
			util.WithComponent("dispatch").Warnf("audit: %v", err)
		}
	}
	return resp
}

// raiseLogLevel lifts the process verbosity to the level carried by the
// request while it is handled. A verbose request changes it for good.
func (d *Dispatcher) raiseLogLevel(req Request) func() {
	if req.Kind == KindVerbose || req.LogLevel <= d.rt.Verbosity() {
		return func() {}
	}
	util.SetVerbosity(req.LogLevel)
	return func() { util.SetVerbosity(d.rt.Verbosity()) }
}

func (d *Dispatcher) add(req Request, ev *audit.Event) Response {
	path := d.docs.ResolveAdd(req.Resource)
	log := util.WithComponent("dispatch").WithField("vfd_rid", req.RequestID)
	log.Debugf("adding vf from file: %s", path)

	doc, err := d.docs.Load(path)
	if err == nil {
		ev.WithVF(doc.PCIID, doc.VFID, doc.Owner)
		_, err = d.admit.Add(doc, path)
	}
	if err != nil {
		d.docs.Reject(path)
		return fail(req.RequestID, fmt.Sprintf("unable to add vf: %s: %s", req.Resource, err))
	}

	if _, err := d.docs.Commit(path); err != nil {
		log.Errorf("unable to move %s to the live directory: %v", path, err)
		d.rollback(doc, path)
		return fail(req.RequestID, fmt.Sprintf("vf add failed: unable to configure the vf for: %s", req.Resource))
	}
	d.sync(doc)
	log.Infof("vf added: %s", req.Resource)
	return ok(req.RequestID, fmt.Sprintf("vf added successfully: %s", req.Resource))
}

// rollback retires a VF whose document could not be made durable. The
// document stays where it is so the add can be retried.
func (d *Dispatcher) rollback(doc *vfdoc.Document, path string) {
	if _, err := d.admit.Delete(doc, path, func() error { return nil }); err != nil {
		util.WithVF(doc.PCIID, doc.VFID).Errorf("rollback of failed add: %v", err)
		return
	}
	d.sync(doc)
}

func (d *Dispatcher) del(req Request, ev *audit.Event) Response {
	path := d.docs.ResolveDelete(req.Resource)
	log := util.WithComponent("dispatch").WithField("vfd_rid", req.RequestID)
	log.Infof("deleting vf from file: %s", path)

	doc, err := d.docs.Load(path)
	if err == nil {
		ev.WithVF(doc.PCIID, doc.VFID, doc.Owner)
		_, err = d.admit.Delete(doc, path, func() error { return d.docs.Remove(path) })
	}
	if err != nil {
		return fail(req.RequestID, fmt.Sprintf("unable to delete internal config for vf: %s: %s", req.Resource, err))
	}
	d.sync(doc)
	log.Infof("vf deleted: %s", req.Resource)
	return ok(req.RequestID, fmt.Sprintf("vf deleted successfully: %s", req.Resource))
}

func (d *Dispatcher) sync(doc *vfdoc.Document) {
	d.queue.EnqueueNow(model.VFKey{PCIID: doc.PCIID, VF: doc.VFID})
	d.updateGauges()
}

func (d *Dispatcher) updateGauges() {
	for _, port := range d.store.Snapshot() {
		metrics.ActiveVFs.WithLabelValues(port.PCIID).Set(float64(len(port.ActiveVFs())))
	}
}

func (d *Dispatcher) verbose(req Request) Response {
	if req.LogLevel < 0 {
		return fail(req.RequestID, fmt.Sprintf("loglevel out of range: %d", req.LogLevel))
	}
	d.rt.SetVerbosity(req.LogLevel)
	util.Logger.Warnf("verbose level changed to %d", req.LogLevel)
	return ok(req.RequestID, fmt.Sprintf("verbose level changed to: %d", req.LogLevel))
}

func (d *Dispatcher) cpuAlarm(req Request) Response {
	v, err := parms.ParseCPUAlarm(req.Resource)
	if err != nil {
		return fail(req.RequestID, "cpu alarm threshold not changed to: bad or missing value")
	}
	pct := int(d.rt.SetCPUAlarm(v) * 100)
	util.WithComponent("dispatch").Infof("cpu alarm threshold changed to %d%%", pct)
	return ok(req.RequestID, fmt.Sprintf("cpu alarm threshold changed to: %d%%", pct))
}

// Restore re-admits every document in the live directory, as at daemon
// start. A document that no longer passes admission is parked in the
// config directory. It returns the number of VFs restored.
func (d *Dispatcher) Restore() (int, error) {
	log := util.WithComponent("dispatch")
	paths, err := d.docs.LiveDocuments()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, path := range paths {
		doc, err := d.docs.Load(path)
		if err == nil {
			_, err = d.admit.Add(doc, path)
		}
		if err != nil {
			log.Warnf("unable to restore vf from %s: %v", path, err)
			if parked := d.docs.Park(path); parked != "" {
				log.Infof("config file parked as %s", parked)
			}
			continue
		}
		d.queue.Enqueue(model.VFKey{PCIID: doc.PCIID, VF: doc.VFID})
		n++
	}
	d.updateGauges()
	log.Infof("%d of %d vfs restored from %s", n, len(paths), d.docs.LiveDir())
	return n, nil
}
