package graphline_test

import (
	"context"
	"testing"
	"time"

	"github.com/graphline/graphline"
)

func TestKVRunStoreSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := graphline.NewKVRunStore(graphline.NewMemoryStore())

	started := time.Now().UTC().Truncate(time.Millisecond)
	run := &graphline.Run{
		ID:        "run-1",
		GraphID:   "enrich",
		Status:    graphline.RunRunning,
		StartTime: started,
		Nodes: map[string]*graphline.NodeState{
			"start": {ID: "start", Status: graphline.NodeCompleted},
			"work":  {ID: "work", Status: graphline.NodePending},
		},
		CurrentNode: "work",
		Inputs:      map[string]any{"topic": "tariffs"},
	}

	if err := store.SaveSnapshot(ctx, run, time.Hour); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := store.LoadSnapshot(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got == nil {
		t.Fatal("LoadSnapshot returned nil for an existing run")
	}
	if got.GraphID != "enrich" || got.CurrentNode != "work" {
		t.Errorf("loaded run = %+v", got)
	}
	if got.Nodes["start"].Status != graphline.NodeCompleted {
		t.Errorf("start status = %s", got.Nodes["start"].Status)
	}
	if !got.StartTime.Equal(started) {
		t.Errorf("start time = %v, want %v", got.StartTime, started)
	}
}

func TestKVRunStoreMissingKeys(t *testing.T) {
	ctx := context.Background()
	store := graphline.NewKVRunStore(graphline.NewMemoryStore())

	run, err := store.LoadSnapshot(ctx, "nope")
	if err != nil || run != nil {
		t.Errorf("LoadSnapshot(missing) = %v, %v, want nil, nil", run, err)
	}
	result, err := store.LoadResult(ctx, "nope")
	if err != nil || result != nil {
		t.Errorf("LoadResult(missing) = %v, %v, want nil, nil", result, err)
	}
}

func TestKVRunStoreKeysAreNamespaced(t *testing.T) {
	// A run snapshot and a result for the same id must not collide.
	ctx := context.Background()
	store := graphline.NewKVRunStore(graphline.NewMemoryStore())

	run := &graphline.Run{ID: "same", GraphID: "g", Status: graphline.RunRunning,
		Nodes: map[string]*graphline.NodeState{}}
	result := &graphline.Result{ID: "same", GraphID: "g", Status: graphline.RunCompleted}

	if err := store.SaveSnapshot(ctx, run, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveResult(ctx, result, time.Hour); err != nil {
		t.Fatal(err)
	}

	gotRun, err := store.LoadSnapshot(ctx, "same")
	if err != nil || gotRun == nil || gotRun.Status != graphline.RunRunning {
		t.Errorf("snapshot clobbered: %+v, %v", gotRun, err)
	}
	gotResult, err := store.LoadResult(ctx, "same")
	if err != nil || gotResult == nil || gotResult.Status != graphline.RunCompleted {
		t.Errorf("result clobbered: %+v, %v", gotResult, err)
	}
}
