package enum

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/adtrails/adtrails/internal/directory"
	"github.com/adtrails/adtrails/internal/persistence"
	"github.com/adtrails/adtrails/internal/progress"
	"github.com/adtrails/adtrails/pkg/logger"
)

// emptyPendingRows stands in for every Phase 2 pending-target scan: zero
// rows means windowedKeysetScan's first page is short and it returns
// immediately, so no SDS/MEMBERSHIPS jobs are generated.
func emptyPendingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"dn", "sid", "guid", "kind"})
}

func TestManagerRunEmptyDomainReachesFinished(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO enumeration_runs").
		WillReturnRows(sqlmock.NewRows([]string{"ad_id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	for i := 0; i < 8; i++ {
		mock.ExpectQuery(".*").WillReturnRows(emptyPendingRows())
	}

	// Empty spill files still go through an (empty) bulk-load unit of work.
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE enumeration_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	client := &directory.Mock{
		ADInfo: directory.RawEntry{
			DN: "DC=corp,DC=example,DC=com", ObjectGUID: "root-guid", ObjectSID: "S-1-5-21-1-2-3",
		},
	}
	gw := persistence.New(db)
	mgr := NewManager(
		Config{Workers: 2, SpillDir: t.TempDir(), Window: 1000},
		client, gw, progress.NewLocalTTY(), nil, logger.NewDefault("enum-test"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	adID, err := mgr.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if adID != 1 {
		t.Fatalf("expected ad_id 1, got %d", adID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSchedulerEnforcesAdinfoBarrierThenCapacity(t *testing.T) {
	s := newScheduler(2)
	s.markRunning(CategoryADInfo)
	if _, ok := s.nextRunnable(); ok {
		t.Fatalf("expected no runnable category before adinfo enqueues anything")
	}
	s.finish(CategoryADInfo)
	for _, c := range Phase1Categories[1:] {
		s.enqueue(c)
	}

	started := map[Category]bool{}
	for {
		c, ok := s.nextRunnable()
		if !ok {
			break
		}
		started[c] = true
	}
	if len(started) != 2 {
		t.Fatalf("expected exactly capacity (2) categories started, got %d", len(started))
	}
	if s.idle() {
		t.Fatalf("scheduler should not be idle while categories are running")
	}
}

func TestSchedulerIdleOnlyWhenPendingAndRunningEmpty(t *testing.T) {
	s := newScheduler(1)
	if !s.idle() {
		t.Fatalf("expected fresh scheduler to be idle")
	}
	s.enqueue(CategoryUsers)
	if s.idle() {
		t.Fatalf("expected scheduler with pending work to be non-idle")
	}
	c, ok := s.nextRunnable()
	if !ok || c != CategoryUsers {
		t.Fatalf("expected to start users, got %v %v", c, ok)
	}
	if s.idle() {
		t.Fatalf("expected scheduler with a running category to be non-idle")
	}
	s.finish(CategoryUsers)
	if !s.idle() {
		t.Fatalf("expected scheduler to go idle once the only running category finishes")
	}
}
