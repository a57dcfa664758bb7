package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name    string
	events  *[]string
	failOn  string
	stopped bool
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(ctx context.Context) error {
	*s.events = append(*s.events, "start:"+s.name)
	if s.failOn == "start" {
		return errors.New("boom")
	}
	return nil
}

func (s *recordingService) Stop(ctx context.Context) error {
	*s.events = append(*s.events, "stop:"+s.name)
	s.stopped = true
	if s.failOn == "stop" {
		return errors.New("boom")
	}
	return nil
}

func TestManager_StartOrderStopReverse(t *testing.T) {
	var events []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordingService{name: name, events: &events}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestManager_StartFailureRollsBack(t *testing.T) {
	var events []string
	m := NewManager()
	first := &recordingService{name: "first", events: &events}
	second := &recordingService{name: "second", events: &events, failOn: "start"}
	_ = m.Register(first)
	_ = m.Register(second)

	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected start failure")
	}
	if !first.stopped {
		t.Fatalf("already-started service was not rolled back")
	}
}

func TestManager_RejectsDuplicatesAndLateRegistration(t *testing.T) {
	var events []string
	m := NewManager()
	if err := m.Register(&recordingService{name: "dup", events: &events}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&recordingService{name: "dup", events: &events}); err == nil {
		t.Fatalf("duplicate name accepted")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Register(&recordingService{name: "late", events: &events}); err == nil {
		t.Fatalf("registration after start accepted")
	}
}
