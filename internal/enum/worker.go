package enum

import (
	"context"
	"fmt"

	"github.com/adtrails/adtrails/internal/directory"
	"github.com/adtrails/adtrails/internal/model"
	"github.com/adtrails/adtrails/internal/ratelimit"
	"github.com/adtrails/adtrails/pkg/logger"
)

// Worker issues its directory requests through Client and drains jobs
// from the input channel until it receives a nil sentinel or ctx is
// cancelled. The Manager hands the same Client to every worker in its
// pool; a worker does not hold a session of its own. Errors during processing never bring the worker down: they
// are converted to EXCEPTION messages and the worker proceeds to the
// terminator for the current job so Manager accounting still closes.
type Worker struct {
	ID      int
	Client  directory.Client
	In      <-chan *Job
	Out     chan<- Message
	Log     *logger.Logger
	Limiter *ratelimit.Limiter // nil means unlimited
}

func (w *Worker) throttle(ctx context.Context) error {
	if w.Limiter == nil {
		return nil
	}
	return w.Limiter.Wait(ctx)
}

// Run is the worker's loop. It returns when In is closed, a nil job is
// received, or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.In:
			if !ok || job == nil {
				return
			}
			w.process(ctx, job)
		}
	}
}

func (w *Worker) send(ctx context.Context, msg Message) bool {
	select {
	case w.Out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) exception(ctx context.Context, cat Category, err error) {
	w.send(ctx, Message{Kind: MsgException, Category: cat, Err: err})
}

func (w *Worker) process(ctx context.Context, job *Job) {
	switch job.Category {
	case CategoryADInfo:
		w.processADInfo(ctx)
	case CategoryTrusts:
		w.processTrusts(ctx)
	case CategoryUsers:
		w.processUsers(ctx)
	case CategoryMachines:
		w.processMachines(ctx)
	case CategoryGroups:
		w.processGroups(ctx)
	case CategoryOUs:
		w.processOUs(ctx)
	case CategoryGPOs:
		w.processGPOs(ctx)
	case CategorySPNs:
		w.processSPNs(ctx)
	case CategorySDs:
		w.processSD(ctx, job.Target)
	case CategoryMemberships:
		w.processMembership(ctx, job.Target)
	default:
		w.exception(ctx, job.Category, fmt.Errorf("enum: unknown job category %q", job.Category))
	}
}

func (w *Worker) processADInfo(ctx context.Context) {
	defer w.send(ctx, Message{Kind: MsgCatFinished, Category: CategoryADInfo})

	entry, err := w.Client.GetADInfo(ctx)
	if err != nil {
		w.exception(ctx, CategoryADInfo, err)
		return
	}
	di := model.DomainInfo{
		DN:         entry.DN,
		ObjectGUID: entry.ObjectGUID,
		ObjectSID:  entry.ObjectSID,
		DomainName: model.DomainNameFromDN(entry.DN),
	}
	if nb, ok := entry.Attrs["netbios"].(string); ok {
		di.NetBIOS = nb
	}
	w.send(ctx, Message{Kind: MsgDomainInfo, Category: CategoryADInfo, DomainInfo: di})
}

func (w *Worker) processTrusts(ctx context.Context) {
	defer w.send(ctx, Message{Kind: MsgCatFinished, Category: CategoryTrusts})

	for r := range w.Client.GetAllTrusts(ctx) {
		if r.Err != nil {
			w.exception(ctx, CategoryTrusts, r.Err)
			continue
		}
		t := model.Trust{
			DN:               r.Entry.DN,
			ObjectGUID:       r.Entry.ObjectGUID,
			TargetDomainName: stringAttr(r.Entry, "targetDomainName"),
			TargetDomainSID:  stringAttr(r.Entry, "securityIdentifier"),
			TrustDirection:   intAttr(r.Entry, "trustDirection"),
			TrustType:        intAttr(r.Entry, "trustType"),
			TrustAttributes:  intAttr(r.Entry, "trustAttributes"),
		}
		if !w.send(ctx, Message{Kind: MsgTrust, Category: CategoryTrusts, Trust: t}) {
			return
		}
	}
}

func (w *Worker) processUsers(ctx context.Context) {
	defer w.send(ctx, Message{Kind: MsgCatFinished, Category: CategoryUsers})

	for r := range w.Client.GetAllUsers(ctx) {
		if r.Err != nil {
			w.exception(ctx, CategoryUsers, r.Err)
			continue
		}
		u := model.User{
			DN:         r.Entry.DN,
			ObjectGUID: r.Entry.ObjectGUID,
			ObjectSID:  r.Entry.ObjectSID,
			SAMAccount: stringAttr(r.Entry, "sAMAccountName"),
			Enabled:    boolAttr(r.Entry, "enabled"),
		}
		spns := parseSPNList(r.Entry, u.ObjectSID)
		if !w.send(ctx, Message{Kind: MsgUser, Category: CategoryUsers, User: u, UserSPNs: spns}) {
			return
		}
	}
}

func (w *Worker) processMachines(ctx context.Context) {
	defer w.send(ctx, Message{Kind: MsgCatFinished, Category: CategoryMachines})

	for r := range w.Client.GetAllMachines(ctx) {
		if r.Err != nil {
			w.exception(ctx, CategoryMachines, r.Err)
			continue
		}
		m := model.Machine{
			DN:         r.Entry.DN,
			ObjectGUID: r.Entry.ObjectGUID,
			ObjectSID:  r.Entry.ObjectSID,
			SAMAccount: stringAttr(r.Entry, "sAMAccountName"),
			OS:         stringAttr(r.Entry, "operatingSystem"),
		}
		spns := parseSPNList(r.Entry, m.ObjectSID)

		var delegations []model.Delegation
		for _, target := range stringListAttr(r.Entry, "allowedtodelegateto") {
			delegations = append(delegations, model.Delegation{SID: m.ObjectSID, Target: target})
		}
		if !w.send(ctx, Message{
			Kind: MsgMachine, Category: CategoryMachines,
			Machine: m, MachineSPNs: spns, Delegations: delegations,
		}) {
			return
		}
	}
}

func (w *Worker) processGroups(ctx context.Context) {
	defer w.send(ctx, Message{Kind: MsgCatFinished, Category: CategoryGroups})

	for r := range w.Client.GetAllGroups(ctx) {
		if r.Err != nil {
			w.exception(ctx, CategoryGroups, r.Err)
			continue
		}
		g := model.Group{
			DN: r.Entry.DN, ObjectGUID: r.Entry.ObjectGUID, ObjectSID: r.Entry.ObjectSID,
			SAMAccount: stringAttr(r.Entry, "sAMAccountName"),
		}
		if !w.send(ctx, Message{Kind: MsgGroup, Category: CategoryGroups, Group: g}) {
			return
		}
	}
}

func (w *Worker) processOUs(ctx context.Context) {
	defer w.send(ctx, Message{Kind: MsgCatFinished, Category: CategoryOUs})

	for r := range w.Client.GetAllOUs(ctx) {
		if r.Err != nil {
			w.exception(ctx, CategoryOUs, r.Err)
			continue
		}
		ou := model.OU{
			DN: r.Entry.DN, ObjectGUID: r.Entry.ObjectGUID,
			GPLinkRaw: stringAttr(r.Entry, "gPLink"),
		}
		if !w.send(ctx, Message{Kind: MsgOU, Category: CategoryOUs, OU: ou}) {
			return
		}
	}
}

func (w *Worker) processGPOs(ctx context.Context) {
	defer w.send(ctx, Message{Kind: MsgCatFinished, Category: CategoryGPOs})

	for r := range w.Client.GetAllGPOs(ctx) {
		if r.Err != nil {
			w.exception(ctx, CategoryGPOs, r.Err)
			continue
		}
		g := model.GPO{
			DN: r.Entry.DN, ObjectGUID: r.Entry.ObjectGUID,
			DisplayNm: stringAttr(r.Entry, "displayName"),
		}
		if !w.send(ctx, Message{Kind: MsgGPO, Category: CategoryGPOs, GPO: g}) {
			return
		}
	}
}

func (w *Worker) processSPNs(ctx context.Context) {
	defer w.send(ctx, Message{Kind: MsgCatFinished, Category: CategorySPNs})

	for r := range w.Client.GetAllSPNEntries(ctx) {
		if r.Err != nil {
			w.exception(ctx, CategorySPNs, r.Err)
			continue
		}
		for _, rec := range parseSPNList(r.Entry, r.Entry.ObjectSID) {
			s := model.SPNService{
				DN: r.Entry.DN, ObjectGUID: r.Entry.ObjectGUID,
				ObjectSID: r.Entry.ObjectSID, SPN: rec.String(),
			}
			if !w.send(ctx, Message{Kind: MsgSPNService, Category: CategorySPNs, SPNService: s}) {
				return
			}
		}
	}
}

// processSD handles one SDS job: fetch the target's ACL, emit one SD
// message, then the per-job JOB_FINISHED terminator (the same terminator
// every MEMBERSHIPS job ends with).
func (w *Worker) processSD(ctx context.Context, target *Target) {
	defer w.send(ctx, Message{Kind: MsgJobFinished, Category: CategorySDs})

	if target == nil {
		w.exception(ctx, CategorySDs, fmt.Errorf("enum: SDS job missing target"))
		return
	}
	if err := w.throttle(ctx); err != nil {
		w.exception(ctx, CategorySDs, err)
		return
	}
	raw, err := w.Client.GetObjectACLByDN(ctx, target.DN)
	if err != nil {
		w.exception(ctx, CategorySDs, err)
		return
	}
	w.send(ctx, Message{
		Kind: MsgSD, Category: CategorySDs,
		SD: securityDescriptorPayload{
			GUID: target.GUID, SID: target.SID,
			ObjectType: model.ObjectType(target.ObjectType), Raw: raw,
		},
	})
}

// processMembership handles one MEMBERSHIPS job: stream token-group rows
// for the target, then emit one per-job terminator.
func (w *Worker) processMembership(ctx context.Context, target *Target) {
	defer w.send(ctx, Message{Kind: MsgJobFinished, Category: CategoryMemberships})

	if target == nil {
		w.exception(ctx, CategoryMemberships, fmt.Errorf("enum: MEMBERSHIPS job missing target"))
		return
	}
	if err := w.throttle(ctx); err != nil {
		w.exception(ctx, CategoryMemberships, err)
		return
	}
	for r := range w.Client.GetTokenGroups(ctx, target.DN) {
		if r.Err != nil {
			w.exception(ctx, CategoryMemberships, r.Err)
			continue
		}
		entry := model.TokenGroupEntry{
			GUID: target.GUID, SID: target.SID,
			ObjectType: model.ObjectType(target.ObjectType),
			MemberSID:  r.Entry.ObjectSID,
		}
		if !w.send(ctx, Message{Kind: MsgMembership, Category: CategoryMemberships, Membership: entry}) {
			return
		}
	}
}

func parseSPNList(entry directory.RawEntry, owner string) []model.SPNRecord {
	var out []model.SPNRecord
	for _, raw := range stringListAttr(entry, "servicePrincipalName") {
		if rec, ok := model.ParseSPN(raw, owner); ok {
			out = append(out, rec)
		}
	}
	return out
}

func stringAttr(e directory.RawEntry, key string) string {
	if v, ok := e.Attrs[key].(string); ok {
		return v
	}
	return ""
}

func boolAttr(e directory.RawEntry, key string) bool {
	if v, ok := e.Attrs[key].(bool); ok {
		return v
	}
	return false
}

func intAttr(e directory.RawEntry, key string) int {
	if v, ok := e.Attrs[key].(int); ok {
		return v
	}
	return 0
}

func stringListAttr(e directory.RawEntry, key string) []string {
	if v, ok := e.Attrs[key].([]string); ok {
		return v
	}
	return nil
}
