package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name    string
	start   func() error
	stop    func() error
	started bool
	stopped bool
	log     *[]string
}

func (r *recordingService) Name() string { return r.name }

func (r *recordingService) Start(_ context.Context) error {
	if r.start != nil {
		if err := r.start(); err != nil {
			return err
		}
	}
	r.started = true
	*r.log = append(*r.log, "start:"+r.name)
	return nil
}

func (r *recordingService) Stop(_ context.Context) error {
	if r.stop != nil {
		if err := r.stop(); err != nil {
			return err
		}
	}
	r.stopped = true
	*r.log = append(*r.log, "stop:"+r.name)
	return nil
}

func TestManagerStartsInOrderStopsInReverse(t *testing.T) {
	var log []string
	m := NewManager()
	for _, name := range []string{"first", "second", "third"} {
		if err := m.Register(&recordingService{name: name, log: &log}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:first", "start:second", "start:third", "stop:third", "stop:second", "stop:first"}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %s, want %s", i, log[i], want[i])
		}
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	var log []string
	m := NewManager()
	if err := m.Register(&recordingService{name: "dup", log: &log}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := m.Register(&recordingService{name: "dup", log: &log}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var log []string
	ok := &recordingService{name: "ok", log: &log}
	bad := &recordingService{name: "bad", log: &log, start: func() error { return errors.New("boom") }}

	m := NewManager()
	if err := m.Register(ok); err != nil {
		t.Fatalf("register ok: %v", err)
	}
	if err := m.Register(bad); err != nil {
		t.Fatalf("register bad: %v", err)
	}

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if !ok.stopped {
		t.Fatal("expected already-started service to be stopped on rollback")
	}
}
