package lifecycle

import (
	"context"
	"errors"
	"testing"
)

type fakeService struct {
	name      string
	startErr  error
	started   *[]string
	stopped   *[]string
}

func (f *fakeService) Name() string { return f.name }
func (f *fakeService) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	*f.started = append(*f.started, f.name)
	return nil
}
func (f *fakeService) Stop(ctx context.Context) error {
	*f.stopped = append(*f.stopped, f.name)
	return nil
}

func TestRunnerStartStopOrder(t *testing.T) {
	var started, stopped []string
	a := &fakeService{name: "a", started: &started, stopped: &stopped}
	b := &fakeService{name: "b", started: &started, stopped: &stopped}
	r := NewRunner(a, b)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(started) != 2 || started[0] != "a" || started[1] != "b" {
		t.Fatalf("unexpected start order: %v", started)
	}

	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(stopped) != 2 || stopped[0] != "b" || stopped[1] != "a" {
		t.Fatalf("unexpected stop order: %v", stopped)
	}
}

func TestRunnerStartFailureRollsBackStarted(t *testing.T) {
	var started, stopped []string
	a := &fakeService{name: "a", started: &started, stopped: &stopped}
	failing := &fakeService{name: "fail", startErr: errors.New("boom"), started: &started, stopped: &stopped}
	r := NewRunner(a, failing)

	err := r.Start(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(started) != 1 || started[0] != "a" {
		t.Fatalf("unexpected started: %v", started)
	}
	if len(stopped) != 1 || stopped[0] != "a" {
		t.Fatalf("expected rollback stop of a, got %v", stopped)
	}
}
