package deployment

import (
	"errors"
	"testing"
	"time"
)

func TestNewRecordInitializesPendingSteps(t *testing.T) {
	r := NewRecord("d1", "p1", "/logs/p1/d1.log", false, TriggerAPI, time.Now())
	if r.Status != StatusQueued {
		t.Errorf("Status = %v, want queued", r.Status)
	}
	if len(r.Steps) != len(Steps) {
		t.Fatalf("Steps = %d entries, want %d", len(r.Steps), len(Steps))
	}
	for _, name := range Steps {
		if r.Steps[name].Status != "pending" {
			t.Errorf("step %s status = %v, want pending", name, r.Steps[name].Status)
		}
	}
}

func TestRecordTerminal(t *testing.T) {
	r := NewRecord("d1", "p1", "", false, TriggerAPI, time.Now())
	if r.Terminal() {
		t.Error("queued record should not be terminal")
	}
	r.Status = StatusSuccess
	if !r.Terminal() {
		t.Error("success record should be terminal")
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	r := NewRecord("d1", "p1", "/logs/p1/d1.log", false, TriggerAPI, time.Now())
	if err := s.Create(r); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := s.Get("d1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ProjectID != "p1" {
		t.Errorf("ProjectID = %v, want p1", got.ProjectID)
	}
}

func TestStoreGetUnknownID(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStoreListForProjectNewestFirst(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	older := NewRecord("d1", "p1", "", false, TriggerAPI, time.Now().Add(-time.Hour))
	newer := NewRecord("d2", "p1", "", false, TriggerAPI, time.Now())
	if err := s.Create(older); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Create(newer); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	list, err := s.ListForProject("p1")
	if err != nil {
		t.Fatalf("ListForProject() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListForProject() = %d records, want 2", len(list))
	}
	if list[0].ID != "d2" {
		t.Errorf("ListForProject()[0].ID = %v, want d2 (newest first)", list[0].ID)
	}
}

func TestStoreUpdateRejectsTerminalRecord(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	r := NewRecord("d1", "p1", "", false, TriggerAPI, time.Now())
	if err := s.Create(r); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := s.Update("p1", "d1", func(r *Record) error { r.Status = StatusSuccess; return nil }); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if _, err := s.Update("p1", "d1", func(r *Record) error { r.Status = StatusFailed; return nil }); err == nil {
		t.Error("Update() should refuse to mutate a terminal record")
	}
}

func TestSetStepTransitions(t *testing.T) {
	r := NewRecord("d1", "p1", "", false, TriggerAPI, time.Now())

	SetStep(r, StepSync, "running", nil)
	if r.Steps[StepSync].StartedAt == nil {
		t.Error("running should set StartedAt")
	}

	SetStep(r, StepSync, "success", nil)
	if r.Steps[StepSync].FinishedAt == nil {
		t.Error("success should set FinishedAt")
	}
	if r.Steps[StepSync].Status != "success" {
		t.Errorf("Status = %v, want success", r.Steps[StepSync].Status)
	}

	SetStep(r, StepInstall, "failed", errors.New("boom"))
	if r.Steps[StepInstall].Error != "boom" {
		t.Errorf("Error = %v, want boom", r.Steps[StepInstall].Error)
	}
}
