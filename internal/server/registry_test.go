package server_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/codelens-dev/presence/internal/server"
)

func participant(id, name string) server.Participant {
	return server.Participant{
		UserID: id,
		Name:   name,
		Avatar: name + ".png",
	}
}

// TestRegistryUpsertAndSnapshot verifies that inserted participants show
// up in snapshots and that re-upserting replaces the stored entry.
func TestRegistryUpsertAndSnapshot(t *testing.T) {
	registry := server.NewRegistry()

	registry.Upsert("a1", participant("a1", "Alice"))
	registry.Upsert("b2", participant("b2", "Bob"))

	snapshot := registry.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("Expected 2 participants, got %d", len(snapshot))
	}
	if snapshot["a1"].Name != "Alice" {
		t.Errorf("Expected name Alice, got %q", snapshot["a1"].Name)
	}

	registry.Upsert("a1", participant("a1", "Alicia"))
	snapshot = registry.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("Expected 2 participants after re-upsert, got %d", len(snapshot))
	}
	if snapshot["a1"].Name != "Alicia" {
		t.Errorf("Expected name Alicia after re-upsert, got %q", snapshot["a1"].Name)
	}
}

// TestRegistrySnapshotIsACopy verifies that mutating the registry after
// taking a snapshot does not change the snapshot.
func TestRegistrySnapshotIsACopy(t *testing.T) {
	registry := server.NewRegistry()
	registry.Upsert("a1", participant("a1", "Alice"))

	snapshot := registry.Snapshot()
	registry.UpdateFocus("a1", "/src/main.go")
	registry.Upsert("b2", participant("b2", "Bob"))

	if len(snapshot) != 1 {
		t.Errorf("Snapshot grew after later upsert: %d entries", len(snapshot))
	}
	if snapshot["a1"].CurrentFile != nil {
		t.Errorf("Snapshot observed a focus change made after it was taken")
	}
}

// TestRegistryUpdateFocus verifies focus updates for present and absent
// identifiers.
func TestRegistryUpdateFocus(t *testing.T) {
	registry := server.NewRegistry()
	registry.Upsert("a1", participant("a1", "Alice"))

	if !registry.UpdateFocus("a1", "/src/lib.rs") {
		t.Fatal("UpdateFocus returned false for a registered participant")
	}

	snapshot := registry.Snapshot()
	if snapshot["a1"].CurrentFile == nil || *snapshot["a1"].CurrentFile != "/src/lib.rs" {
		t.Errorf("Expected current file /src/lib.rs, got %v", snapshot["a1"].CurrentFile)
	}

	if registry.UpdateFocus("missing", "/src/lib.rs") {
		t.Error("UpdateFocus returned true for an absent participant")
	}
	if _, ok := registry.Snapshot()["missing"]; ok {
		t.Error("UpdateFocus on an absent id created an entry")
	}
}

// TestRegistryRemove verifies removal and its return value.
func TestRegistryRemove(t *testing.T) {
	registry := server.NewRegistry()
	registry.Upsert("a1", participant("a1", "Alice"))

	if !registry.Remove("a1") {
		t.Error("Remove returned false for a registered participant")
	}
	if registry.Remove("a1") {
		t.Error("Remove returned true for an already removed participant")
	}
	if registry.Len() != 0 {
		t.Errorf("Expected empty registry, got %d entries", registry.Len())
	}
}

// TestRegistryConcurrentSessions simulates many sessions registering,
// focusing, and disconnecting concurrently, and verifies the final state
// contains exactly the identifiers that registered and did not disconnect.
func TestRegistryConcurrentSessions(t *testing.T) {
	registry := server.NewRegistry()

	const sessions = 50
	var wg sync.WaitGroup

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", n)
			registry.Upsert(id, participant(id, id))
			registry.UpdateFocus(id, fmt.Sprintf("/src/file%d.go", n))
			if n%2 == 0 {
				registry.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	snapshot := registry.Snapshot()
	if len(snapshot) != sessions/2 {
		t.Fatalf("Expected %d participants, got %d", sessions/2, len(snapshot))
	}
	for i := 1; i < sessions; i += 2 {
		id := fmt.Sprintf("user-%d", i)
		p, ok := snapshot[id]
		if !ok {
			t.Errorf("Expected %s to remain registered", id)
			continue
		}
		if p.CurrentFile == nil {
			t.Errorf("Expected %s to have a current file", id)
		}
	}
}
