// CLAUDE:SUMMARY Registers the autoconfirm bus services (get_templates, page_loaded, trigger_fill, ping) on the daemon router.
package autoconfirm

import (
	"context"
	"errors"

	"github.com/hazyhaar/autoconfirm/bus"
	"github.com/hazyhaar/autoconfirm/rules"
)

// registerServices serves the bus services in-process. Routes loaded from
// configuration may send any of them elsewhere.
//
//	autoconfirm_get_templates  ordered template list
//	autoconfirm_page_loaded    a page finished navigating; restart its scans
//	autoconfirm_trigger_fill   scan a page now; empty page_id scans all
//	autoconfirm_ping           liveness
func (d *Daemon) registerServices() {
	d.router.RegisterLocal(bus.ServiceGetTemplates, bus.Serve(d.handleGetTemplates))
	d.router.RegisterLocal(bus.ServicePageLoaded, bus.Serve(d.handlePageLoaded))
	d.router.RegisterLocal(bus.ServiceTriggerFill, bus.Serve(d.handleTriggerFill))
	d.router.RegisterLocal(bus.ServicePing, bus.Serve(d.handlePing))
}

func (d *Daemon) handleGetTemplates(ctx context.Context, _ struct{}) ([]rules.Template, error) {
	return d.store.Templates(ctx)
}

func (d *Daemon) handlePageLoaded(_ context.Context, req bus.PageRequest) (bus.PingReply, error) {
	if req.PageID == "" {
		return bus.PingReply{}, errors.New("page_id is required")
	}
	r, err := d.page(req.PageID)
	if err != nil {
		return bus.PingReply{}, err
	}
	r.sched.PageLoaded()
	return bus.PingReply{OK: true}, nil
}

func (d *Daemon) handleTriggerFill(ctx context.Context, req bus.PageRequest) (bus.FillReply, error) {
	ok, err := d.TriggerFill(ctx, req.PageID)
	if err != nil {
		return bus.FillReply{}, err
	}
	return bus.FillReply{Success: true, Filled: ok}, nil
}

func (d *Daemon) handlePing(context.Context, struct{}) (bus.PingReply, error) {
	return bus.PingReply{OK: true}, nil
}
