package enum

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adtrails/adtrails/internal/directory"
	"github.com/adtrails/adtrails/internal/metrics"
	"github.com/adtrails/adtrails/internal/model"
	"github.com/adtrails/adtrails/internal/persistence"
	"github.com/adtrails/adtrails/internal/progress"
	"github.com/adtrails/adtrails/internal/ratelimit"
	"github.com/adtrails/adtrails/internal/spill"
	"github.com/adtrails/adtrails/internal/svcerrors"
	"github.com/adtrails/adtrails/pkg/logger"
)

// sdObjectTypes and membershipObjectTypes list, in order, the directory
// categories each Phase 2 job kind is generated against.
var sdObjectTypes = []string{"User", "Machine", "Group", "OU", "GPO"}
var membershipObjectTypes = []string{"User", "Machine", "Group"}

// bulkLoadBatch is the commit granularity during bulk-load, per the
// command-table's "committing every 10 000 rows" rule.
const bulkLoadBatch = 10000

// Config parameterizes a Manager.
type Config struct {
	Workers      int
	RateLimitRPS float64
	SpillDir     string
	Window       int // Phase-2 keyset pagination window, defaults to 1000
}

// Manager is the Enumeration Manager: it owns the worker pool, runs Phase 1
// breadth enumeration followed by Phase 2 targeted enumeration, routes
// worker output to the Persistence Gateway and Spill Store, and drives the
// Progress Observer and termination sequence. It implements
// lifecycle.Service so a top-level runner can start/stop it uniformly.
type Manager struct {
	cfg      Config
	client   directory.Client
	gw       *persistence.Gateway
	observer progress.Observer
	metrics  *metrics.Registry
	log      *logger.Logger
	limiter  *ratelimit.Limiter

	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// NewManager builds a Manager, applying Worker/Window defaults.
func NewManager(cfg Config, client directory.Client, gw *persistence.Gateway, observer progress.Observer, reg *metrics.Registry, log *logger.Logger) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = 1000
	}
	return &Manager{
		cfg: cfg, client: client, gw: gw, observer: observer, metrics: reg, log: log,
		limiter: ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.RateLimitRPS}),
	}
}

// Name satisfies lifecycle.Service.
func (m *Manager) Name() string { return "enumeration-manager" }

// Start satisfies lifecycle.Service: it launches one enumeration run in the
// background. Stop cancels it.
func (m *Manager) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		_, m.runErr = m.Run(runCtx)
	}()
	return nil
}

// Stop satisfies lifecycle.Service: it cancels the run and waits for it to
// unwind, bounded by ctx.
func (m *Manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	select {
	case <-m.done:
		return m.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives one end-to-end enumeration: Phase 1 breadth, Phase 2 targeted,
// bulk-load, and termination. It returns the run's ad_id.
func (m *Manager) Run(ctx context.Context) (int64, error) {
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	jobs := make(chan *Job, 4096) // large enough to never block the producer in practice
	out := make(chan Message, m.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < m.cfg.Workers; i++ {
		wg.Add(1)
		w := &Worker{ID: i, Client: m.client, In: jobs, Out: out, Log: m.log, Limiter: m.limiter}
		go func() { defer wg.Done(); w.Run(workerCtx) }()
	}

	snap := progress.Snapshot{}
	m.observer.Lifecycle(ctx, progress.LifecycleStarted, snap)

	adID, domainName, err := m.runPhase1(ctx, jobs, out, &snap)
	if err != nil {
		m.abort(cancelWorkers, &wg)
		m.observer.Lifecycle(ctx, progress.LifecycleAborted, snap)
		return 0, err
	}
	snap.ADID, snap.DomainName = adID, domainName

	if err := m.runPhase2(ctx, adID, jobs, out, &snap); err != nil {
		m.abort(cancelWorkers, &wg)
		m.observer.Lifecycle(ctx, progress.LifecycleAborted, snap)
		return 0, err
	}

	finishUOW, err := m.gw.Begin(ctx)
	if err != nil {
		m.abort(cancelWorkers, &wg)
		m.observer.Lifecycle(ctx, progress.LifecycleAborted, snap)
		return 0, svcerrors.Persistence("begin finish-run unit of work", err)
	}
	if err := finishUOW.FinishRun(ctx, adID, model.RunFinished, time.Now()); err != nil {
		finishUOW.Rollback()
		m.abort(cancelWorkers, &wg)
		m.observer.Lifecycle(ctx, progress.LifecycleAborted, snap)
		return 0, svcerrors.Persistence("finish run", err)
	}
	if err := finishUOW.Commit(); err != nil {
		m.abort(cancelWorkers, &wg)
		m.observer.Lifecycle(ctx, progress.LifecycleAborted, snap)
		return 0, svcerrors.Persistence("commit finish run", err)
	}

	m.drain(jobs, &wg)
	m.observer.Lifecycle(ctx, progress.LifecycleFinished, snap)
	return adID, nil
}

// abort force-cancels the worker pool and waits for it to unwind, the
// cancellation path in the termination contract.
func (m *Manager) abort(cancelWorkers context.CancelFunc, wg *sync.WaitGroup) {
	cancelWorkers()
	wg.Wait()
}

// drain performs the normal termination sequence: send N null sentinels,
// wait briefly for the pool to exit, then return.
func (m *Manager) drain(jobs chan *Job, wg *sync.WaitGroup) {
	for i := 0; i < m.cfg.Workers; i++ {
		jobs <- nil
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

// runPhase1 schedules the fixed breadth category list behind the adinfo
// barrier and routes output to the Persistence Gateway in one unit of
// work, committing once the phase completes.
func (m *Manager) runPhase1(ctx context.Context, jobs chan *Job, out <-chan Message, snap *progress.Snapshot) (int64, string, error) {
	uow, err := m.gw.Begin(ctx)
	if err != nil {
		return 0, "", svcerrors.Persistence("begin phase 1 unit of work", err)
	}

	sched := newScheduler(m.cfg.Workers)
	sched.markRunning(CategoryADInfo)
	jobs <- &Job{Category: CategoryADInfo}
	snap.Running = append(snap.Running, string(CategoryADInfo))
	if m.metrics != nil {
		m.metrics.CategoriesRunning.Set(float64(len(sched.running)))
	}

	var adID int64
	var domainName string

	for {
		select {
		case <-ctx.Done():
			uow.Rollback()
			return 0, "", ctx.Err()
		case msg := <-out:
			if err := m.routePhase1(ctx, uow, &adID, &domainName, msg); err != nil {
				uow.Rollback()
				return 0, "", err
			}
			m.reportItem(ctx, snap, msg)

			if msg.Kind == MsgCatFinished {
				sched.finish(msg.Category)
				if msg.Category == CategoryADInfo {
					for _, c := range Phase1Categories[1:] {
						sched.enqueue(c)
					}
				}
				for {
					next, ok := sched.nextRunnable()
					if !ok {
						break
					}
					jobs <- &Job{Category: next}
					snap.Running = append(snap.Running, string(next))
				}
				if m.metrics != nil {
					m.metrics.CategoriesRunning.Set(float64(len(sched.running)))
				}
				if sched.idle() {
					if err := uow.Commit(); err != nil {
						return 0, "", svcerrors.Persistence("commit phase 1", err)
					}
					return adID, domainName, nil
				}
			}
		}
	}
}

func (m *Manager) routePhase1(ctx context.Context, uow *persistence.UnitOfWork, adID *int64, domainName *string, msg Message) error {
	switch msg.Kind {
	case MsgException:
		m.log.WithField("category", msg.Category).Warn(msg.Err)
	case MsgDomainInfo:
		id, err := uow.InsertDomainInfo(ctx, msg.DomainInfo, time.Now())
		if err != nil {
			return svcerrors.Persistence("insert domain info", err)
		}
		*adID, *domainName = id, msg.DomainInfo.DomainName
		m.countRecord("adinfo")
	case MsgTrust:
		rec := msg.Trust
		rec.ADID = *adID
		if err := uow.InsertTrust(ctx, rec); err != nil {
			return svcerrors.Persistence("insert trust", err)
		}
		m.countRecord("trusts")
	case MsgUser:
		rec := msg.User
		rec.ADID = *adID
		if err := uow.InsertUser(ctx, rec, msg.UserSPNs); err != nil {
			return svcerrors.Persistence("insert user", err)
		}
		m.countRecord("users")
	case MsgMachine:
		rec := msg.Machine
		rec.ADID = *adID
		if err := uow.InsertMachine(ctx, rec, msg.MachineSPNs); err != nil {
			return svcerrors.Persistence("insert machine", err)
		}
		sid, err := uow.RefreshMachineSID(ctx, *adID, rec.ObjectGUID)
		if err != nil {
			return svcerrors.Persistence("refresh machine sid", err)
		}
		for _, d := range msg.Delegations {
			d.ADID, d.SID = *adID, sid
			if err := uow.InsertDelegation(ctx, d); err != nil {
				return svcerrors.Persistence("insert delegation", err)
			}
		}
		m.countRecord("machines")
	case MsgGroup:
		rec := msg.Group
		rec.ADID = *adID
		if err := uow.InsertGroup(ctx, rec); err != nil {
			return svcerrors.Persistence("insert group", err)
		}
		m.countRecord("groups")
	case MsgOU:
		rec := msg.OU
		rec.ADID = *adID
		if err := uow.InsertOU(ctx, rec); err != nil {
			return svcerrors.Persistence("insert ou", err)
		}
		m.countRecord("ous")
	case MsgGPO:
		rec := msg.GPO
		rec.ADID = *adID
		if err := uow.InsertGPO(ctx, rec); err != nil {
			return svcerrors.Persistence("insert gpo", err)
		}
		m.countRecord("gpos")
	case MsgSPNService:
		rec := msg.SPNService
		rec.ADID = *adID
		if err := uow.InsertSPNService(ctx, rec); err != nil {
			return svcerrors.Persistence("insert spn service", err)
		}
		m.countRecord("spns")
	}
	return nil
}

// runPhase2 generates SDS/MEMBERSHIPS jobs for objects not yet covered,
// asynchronously with consumption, spilling results to disk, then bulk-
// loads each spill file.
func (m *Manager) runPhase2(ctx context.Context, adID int64, jobs chan *Job, out <-chan Message, snap *progress.Snapshot) error {
	now := time.Now()
	sdWriter, err := spill.NewWriter(m.cfg.SpillDir, spill.KindSecurityDescriptor, now)
	if err != nil {
		return svcerrors.Resource("open sd spill writer", err)
	}
	tokenWriter, err := spill.NewWriter(m.cfg.SpillDir, spill.KindTokenGroup, now)
	if err != nil {
		return svcerrors.Resource("open token spill writer", err)
	}

	var pending int64
	producerDone := make(chan struct{})
	go m.producePhase2Jobs(ctx, adID, jobs, &pending, producerDone)

	closed := false
	for !closed || atomic.LoadInt64(&pending) != 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-producerDone:
			closed = true
		case msg := <-out:
			m.reportItem(ctx, snap, msg)
			switch msg.Kind {
			case MsgException:
				m.log.WithField("category", msg.Category).Warn(msg.Err)
			case MsgSD:
				binding := model.NewSecurityDescriptorBinding(adID, msg.SD.GUID, msg.SD.SID, msg.SD.ObjectType, msg.SD.Raw)
				if err := sdWriter.Append(sdSpillRow{
					GUID: binding.GUID, SID: binding.SID, ObjectType: string(binding.ObjectType),
					SDBytesB64: string(binding.SDBytes), SDHash: binding.SDHash,
				}); err != nil {
					m.log.WithField("category", CategorySDs).Warn(svcerrors.Resource("append sd spill row", err))
				}
			case MsgMembership:
				if err := tokenWriter.Append(membershipSpillRow{
					GUID: msg.Membership.GUID, SID: msg.Membership.SID,
					ObjectType: string(msg.Membership.ObjectType), MemberSID: msg.Membership.MemberSID,
				}); err != nil {
					m.log.WithField("category", CategoryMemberships).Warn(svcerrors.Resource("append token spill row", err))
				}
			case MsgJobFinished:
				atomic.AddInt64(&pending, -1)
			}
		}
	}

	if m.metrics != nil {
		m.metrics.SpillBytesWrittenTotal.WithLabelValues(string(spill.KindSecurityDescriptor)).Add(float64(sdWriter.BytesWritten()))
		m.metrics.SpillBytesWrittenTotal.WithLabelValues(string(spill.KindTokenGroup)).Add(float64(tokenWriter.BytesWritten()))
	}

	if err := sdWriter.Close(); err != nil {
		m.log.Warn(svcerrors.Resource("close sd spill writer", err))
	} else if err := m.bulkLoadSD(ctx, adID, sdWriter.Path()); err != nil {
		m.log.Warn(err)
	} else if err := sdWriter.Remove(); err != nil {
		m.log.Warn(svcerrors.Resource("remove sd spill file", err))
	}

	if err := tokenWriter.Close(); err != nil {
		m.log.Warn(svcerrors.Resource("close token spill writer", err))
	} else if err := m.bulkLoadMembership(ctx, adID, tokenWriter.Path()); err != nil {
		m.log.Warn(err)
	} else if err := tokenWriter.Remove(); err != nil {
		m.log.Warn(svcerrors.Resource("remove token spill file", err))
	}

	return nil
}

// producePhase2Jobs streams pending SD and membership targets from the
// Persistence Gateway and turns each into a job, incrementing pending
// before the send so the consumer never observes a spurious zero. A
// failure scanning one object type is logged and does not abort the
// other types (Phase 2 errors are confined to that spill, per spec).
func (m *Manager) producePhase2Jobs(ctx context.Context, adID int64, jobs chan<- *Job, pending *int64, done chan<- struct{}) {
	defer close(done)

	emit := func(cat Category, t persistence.PendingTarget) error {
		atomic.AddInt64(pending, 1)
		select {
		case jobs <- &Job{Category: cat, Target: &Target{DN: t.DN, SID: t.SID, GUID: t.GUID, ObjectType: t.ObjectType}}:
			return nil
		case <-ctx.Done():
			atomic.AddInt64(pending, -1)
			return ctx.Err()
		}
	}

	for _, ot := range sdObjectTypes {
		if err := m.gw.PendingSDTargets(ctx, adID, ot, m.cfg.Window, func(t persistence.PendingTarget) error {
			return emit(CategorySDs, t)
		}); err != nil {
			m.log.WithField("object_type", ot).Warn(svcerrors.Resource("generate sd jobs", err))
		}
	}
	for _, ot := range membershipObjectTypes {
		if err := m.gw.PendingMembershipTargets(ctx, adID, ot, m.cfg.Window, func(t persistence.PendingTarget) error {
			return emit(CategoryMemberships, t)
		}); err != nil {
			m.log.WithField("object_type", ot).Warn(svcerrors.Resource("generate membership jobs", err))
		}
	}
}

type sdSpillRow struct {
	GUID       string `json:"guid"`
	SID        string `json:"sid"`
	ObjectType string `json:"object_type"`
	SDBytesB64 string `json:"sd_bytes_b64"`
	SDHash     string `json:"sd_hash"`
}

type membershipSpillRow struct {
	GUID       string `json:"guid"`
	SID        string `json:"sid"`
	ObjectType string `json:"object_type"`
	MemberSID  string `json:"member_sid"`
}

func (m *Manager) bulkLoadSD(ctx context.Context, adID int64, path string) error {
	uow, err := m.gw.Begin(ctx)
	if err != nil {
		return svcerrors.Persistence("begin sd bulk-load unit of work", err)
	}
	start := time.Now()
	count := 0
	readErr := spill.ReadLines(path, func(line []byte) error {
		var row sdSpillRow
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("enum: decode sd spill row: %w", err)
		}
		b := model.SecurityDescriptorBinding{
			ADID: adID, GUID: row.GUID, SID: row.SID, ObjectType: model.ObjectType(row.ObjectType),
			SDBytes: []byte(row.SDBytesB64), SDHash: row.SDHash,
		}
		if err := uow.InsertSecurityDescriptorBinding(ctx, b); err != nil {
			return err
		}
		count++
		if count%bulkLoadBatch == 0 {
			if err := uow.Commit(); err != nil {
				return err
			}
			next, err := m.gw.Begin(ctx)
			if err != nil {
				return err
			}
			uow = next
		}
		return nil
	})
	if readErr != nil {
		if uow != nil {
			uow.Rollback()
		}
		return svcerrors.Resource("bulk-load sd spill", readErr)
	}
	if err := uow.Commit(); err != nil {
		return svcerrors.Persistence("commit sd bulk-load", err)
	}
	if m.metrics != nil {
		m.metrics.BulkLoadBatchDuration.WithLabelValues(string(spill.KindSecurityDescriptor)).Observe(time.Since(start).Seconds())
	}
	return nil
}

func (m *Manager) bulkLoadMembership(ctx context.Context, adID int64, path string) error {
	uow, err := m.gw.Begin(ctx)
	if err != nil {
		return svcerrors.Persistence("begin membership bulk-load unit of work", err)
	}
	start := time.Now()
	count := 0
	readErr := spill.ReadLines(path, func(line []byte) error {
		var row membershipSpillRow
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("enum: decode membership spill row: %w", err)
		}
		e := model.TokenGroupEntry{
			ADID: adID, GUID: row.GUID, SID: row.SID,
			ObjectType: model.ObjectType(row.ObjectType), MemberSID: row.MemberSID,
		}
		if err := uow.InsertTokenGroupEntry(ctx, e); err != nil {
			return err
		}
		count++
		if count%bulkLoadBatch == 0 {
			if err := uow.Commit(); err != nil {
				return err
			}
			next, err := m.gw.Begin(ctx)
			if err != nil {
				return err
			}
			uow = next
		}
		return nil
	})
	if readErr != nil {
		if uow != nil {
			uow.Rollback()
		}
		return svcerrors.Resource("bulk-load membership spill", readErr)
	}
	if err := uow.Commit(); err != nil {
		return svcerrors.Persistence("commit membership bulk-load", err)
	}
	if m.metrics != nil {
		m.metrics.BulkLoadBatchDuration.WithLabelValues(string(spill.KindTokenGroup)).Observe(time.Since(start).Seconds())
	}
	return nil
}

func (m *Manager) countRecord(category string) {
	if m.metrics != nil {
		m.metrics.RecordsStoredTotal.WithLabelValues(category).Inc()
	}
}

// reportItem feeds the Progress Observer. Category-finished transitions
// move the category from running to finished in the snapshot; EXCEPTION
// messages are not counted; every other message is counted as one
// processed item.
func (m *Manager) reportItem(ctx context.Context, snap *progress.Snapshot, msg Message) {
	switch msg.Kind {
	case MsgCatFinished:
		snap.Running = removeCategory(snap.Running, string(msg.Category))
		snap.Finished = append(snap.Finished, string(msg.Category))
	case MsgException:
		// no item accounting for exceptions
	default:
		snap.TotalFinished++
	}
	m.observer.Item(ctx, *snap)
}

func removeCategory(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// categoryScheduler implements Phase 1's scheduling rule: at most capacity
// categories running at once, drained from a pending queue as running
// categories finish. The adinfo barrier falls out naturally because
// nothing is enqueued until adinfo's CATEGORY_FINISHED is observed.
type categoryScheduler struct {
	capacity int
	pending  []Category
	running  map[Category]bool
}

func newScheduler(capacity int) *categoryScheduler {
	return &categoryScheduler{capacity: capacity, running: make(map[Category]bool)}
}

func (s *categoryScheduler) enqueue(c Category) { s.pending = append(s.pending, c) }

func (s *categoryScheduler) markRunning(c Category) { s.running[c] = true }

func (s *categoryScheduler) finish(c Category) { delete(s.running, c) }

func (s *categoryScheduler) nextRunnable() (Category, bool) {
	if len(s.pending) == 0 || len(s.running) >= s.capacity {
		return "", false
	}
	c := s.pending[0]
	s.pending = s.pending[1:]
	s.running[c] = true
	return c, true
}

func (s *categoryScheduler) idle() bool {
	return len(s.pending) == 0 && len(s.running) == 0
}
