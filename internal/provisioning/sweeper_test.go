package provisioning

import (
	"context"
	"sort"
	"testing"

	"tellusnode/internal/cloud"
	"tellusnode/internal/registry"
)

func TestSweepDeletesOrphans(t *testing.T) {
	ctx := context.Background()
	c, provider, store := newTestController(t)
	session := provider.Session

	// ORDER-1 is registered, ORDER-2 and ORDER-3 are orphans, the last
	// server belongs to someone else entirely
	session.Servers = []cloud.Server{
		{ID: "srv-1", Name: "tellus-vm-ORDER-1", Status: cloud.ServerStatusActive},
		{ID: "srv-2", Name: "tellus-vm-ORDER-2", Status: cloud.ServerStatusActive},
		{ID: "srv-3", Name: "tellus-vm-ORDER-3", Status: "ERROR"},
		{ID: "srv-4", Name: "jenkins-agent-7", Status: cloud.ServerStatusActive},
	}
	session.Keypairs = []cloud.Keypair{
		{Name: "tellus-vm-ORDER-2"},
		{Name: "tellus-vm-ORDER-3"},
	}
	if err := store.Put(ctx, "ORDER-1", registry.Handle{Type: "vm", ID: "srv-1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	removed, err := c.Sweep(ctx, 2, false)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	sort.Strings(removed)
	if len(removed) != 2 || removed[0] != "tellus-vm-ORDER-2" || removed[1] != "tellus-vm-ORDER-3" {
		t.Errorf("Unexpected removals: %v", removed)
	}

	sort.Strings(session.DeletedServers)
	if len(session.DeletedServers) != 2 || session.DeletedServers[0] != "srv-2" || session.DeletedServers[1] != "srv-3" {
		t.Errorf("Unexpected server deletions: %v", session.DeletedServers)
	}
	sort.Strings(session.DeletedKeypairs)
	if len(session.DeletedKeypairs) != 2 {
		t.Errorf("Expected orphan keypairs to be deleted, got %v", session.DeletedKeypairs)
	}

	// the registered server and the foreign one are untouched
	for _, srv := range session.Servers {
		if srv.ID != "srv-1" && srv.ID != "srv-4" {
			t.Errorf("Unexpected surviving server: %+v", srv)
		}
	}
}

func TestSweepDryRun(t *testing.T) {
	ctx := context.Background()
	c, provider, _ := newTestController(t)
	provider.Session.Servers = []cloud.Server{
		{ID: "srv-2", Name: "tellus-vm-ORDER-2", Status: cloud.ServerStatusActive},
	}

	orphans, err := c.Sweep(ctx, 2, true)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(orphans) != 1 || orphans[0] != "tellus-vm-ORDER-2" {
		t.Errorf("Unexpected orphans: %v", orphans)
	}
	if len(provider.Session.DeletedServers) != 0 {
		t.Errorf("Expected dry run to delete nothing, got %v", provider.Session.DeletedServers)
	}
}

func TestSweepNothingToDo(t *testing.T) {
	c, _, _ := newTestController(t)

	removed, err := c.Sweep(context.Background(), 2, false)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("Expected no removals, got %v", removed)
	}
}
