package server

import (
	"context"
	"testing"
)

func TestRunManager_StartRelease(t *testing.T) {
	rm := NewRunManager()

	id, ctx, release := rm.Start(context.Background())
	if id == "" {
		t.Fatal("expected run ID")
	}
	if rm.Active() != 1 {
		t.Errorf("expected 1 active run, got %d", rm.Active())
	}

	release()
	release()
	if ctx.Err() == nil {
		t.Error("expected context cancelled after release")
	}
	if rm.Active() != 0 {
		t.Errorf("expected 0 active runs, got %d", rm.Active())
	}
}

func TestRunManager_Cancel(t *testing.T) {
	rm := NewRunManager()

	id, ctx, release := rm.Start(context.Background())
	defer release()

	if !rm.Cancel(id) {
		t.Fatal("expected Cancel to find the run")
	}
	if ctx.Err() == nil {
		t.Error("expected context cancelled")
	}
	if rm.Cancel(id) {
		t.Error("second Cancel should report false")
	}
}

func TestRunManager_CloseAll(t *testing.T) {
	rm := NewRunManager()

	_, ctx1, release1 := rm.Start(context.Background())
	defer release1()
	_, ctx2, release2 := rm.Start(context.Background())
	defer release2()

	rm.CloseAll()

	if ctx1.Err() == nil || ctx2.Err() == nil {
		t.Error("expected all runs cancelled")
	}
	if rm.Active() != 0 {
		t.Errorf("expected 0 active runs, got %d", rm.Active())
	}

	_, ctx3, release3 := rm.Start(context.Background())
	defer release3()
	if ctx3.Err() == nil {
		t.Error("runs started after CloseAll should be cancelled")
	}
}

func TestRunManager_ParentCancel(t *testing.T) {
	rm := NewRunManager()
	parent, cancel := context.WithCancel(context.Background())

	_, ctx, release := rm.Start(parent)
	defer release()

	cancel()
	<-ctx.Done()
}
