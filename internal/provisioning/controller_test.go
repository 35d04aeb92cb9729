package provisioning

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tellusnode/internal/cloud"
	"tellusnode/internal/registry"
)

func testOffering(orderID string) Offering {
	return Offering{
		OrderID: orderID,
		VirtualMachine: &VirtualMachineOffering{
			ServerFlavor: ServerFlavor{
				CPU:        CPU{Cores: 2},
				RAM:        Quantity{Value: 4, Unit: "GByte"},
				BootVolume: Quantity{Value: 20, Unit: "GByte"},
			},
			SSHKeys: []string{testPublicKey},
		},
	}
}

func newTestController(t *testing.T) (*Controller, *cloud.FakeProvider, registry.Store) {
	t.Helper()

	provider := cloud.NewFakeProvider()
	provider.Session.Images = []cloud.Image{
		{ID: "img-1", Name: "Ubuntu 24.04", MinRAMMegabytes: 2048, MinDiskGigabytes: 10},
	}
	provider.Session.Flavors = []cloud.Flavor{
		{ID: "flv-1", Name: "SCS-2V-4-20"},
	}
	provider.Session.Networks = []cloud.Network{
		{ID: "net-1", Name: "acme-network"},
	}

	store := registry.NewMemoryStore()
	controller := NewController(store, provider, Options{
		ImageName:   "Ubuntu 24.04",
		NamePrefix:  "tellus-vm-",
		NetworkName: "acme-network",
	})
	return controller, provider, store
}

func TestCreateStatusDestroyRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, provider, store := newTestController(t)
	session := provider.Session

	if err := c.Create(ctx, testOffering("order-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// registry entry under the upper-cased key
	handle, found, _ := store.Get(ctx, "ORDER-1")
	if !found {
		t.Fatal("Expected registry entry after create")
	}
	if handle.Type != "vm" || handle.ID == "" {
		t.Errorf("Unexpected handle: %+v", handle)
	}

	if len(session.CreatedServers) != 1 {
		t.Fatalf("Expected one server creation, got %d", len(session.CreatedServers))
	}
	if session.CreatedServers[0].Name != "tellus-vm-ORDER-1" {
		t.Errorf("Unexpected server name: %q", session.CreatedServers[0].Name)
	}
	if len(session.CreatedKeypairs) != 1 || session.CreatedKeypairs[0] != "tellus-vm-ORDER-1" {
		t.Errorf("Unexpected keypair creations: %v", session.CreatedKeypairs)
	}

	// status is derived from live state; key lookup is case-insensitive
	status, err := c.Status(ctx, "order-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Status != StatusUp {
		t.Errorf("Expected status up, got %q", status.Status)
	}
	if len(status.IPAddresses) != 1 {
		t.Fatalf("Expected one IP address, got %v", status.IPAddresses)
	}
	ip := status.IPAddresses[0]
	if ip.Value != session.FloatingIP || ip.Type != "ipv4" || ip.Prefix != "32" {
		t.Errorf("Unexpected IP address: %+v", ip)
	}

	if err := c.Destroy(ctx, "order-1"); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, found, _ := store.Get(ctx, "ORDER-1"); found {
		t.Error("Expected registry entry to be removed after destroy")
	}
	if len(session.DeletedServers) != 1 {
		t.Errorf("Expected one server deletion, got %v", session.DeletedServers)
	}
	if len(session.DeletedKeypairs) != 1 || session.DeletedKeypairs[0] != "tellus-vm-ORDER-1" {
		t.Errorf("Expected keypair deletion, got %v", session.DeletedKeypairs)
	}

	// the configuration is now unknown again
	if _, err := c.Status(ctx, "order-1"); AsFailure(err).Code != 404 {
		t.Errorf("Expected 404 after destroy, got %v", err)
	}
}

func TestStatusBeforeCreate(t *testing.T) {
	c, _, _ := newTestController(t)

	status, err := c.Status(context.Background(), "order-1")
	if status != nil {
		t.Errorf("Expected no status for unknown configuration, got %+v", status)
	}
	f := AsFailure(err)
	if f.Code != 404 {
		t.Errorf("Expected 404, got %d", f.Code)
	}
	if f.Message != "Unknown configuration 'order-1'" {
		t.Errorf("Unexpected message: %q", f.Message)
	}
}

func TestCreateDuplicateKey(t *testing.T) {
	ctx := context.Background()
	c, provider, _ := newTestController(t)

	if err := c.Create(ctx, testOffering("order-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// same key, different case
	err := c.Create(ctx, testOffering("Order-1"))
	f := AsFailure(err)
	if f.Code != 400 {
		t.Errorf("Expected 400, got %d", f.Code)
	}
	if len(provider.Session.CreatedServers) != 1 {
		t.Errorf("Expected no second server, got %d", len(provider.Session.CreatedServers))
	}
}

func TestCreateProviderSideDuplicate(t *testing.T) {
	// registry is empty but an instance carrying the key already exists
	ctx := context.Background()
	c, provider, _ := newTestController(t)
	provider.Session.Servers = []cloud.Server{
		{ID: "srv-old", Name: "tellus-vm-ORDER-1", Status: cloud.ServerStatusActive},
	}

	err := c.Create(ctx, testOffering("order-1"))
	f := AsFailure(err)
	if f.Code != 400 {
		t.Errorf("Expected 400, got %d", f.Code)
	}
	if f.Message != "VM with key 'ORDER-1' already exists" {
		t.Errorf("Unexpected message: %q", f.Message)
	}
	if len(provider.Session.CreatedServers) != 0 {
		t.Error("Expected no server creation")
	}
}

func TestCreateRejectsNonVMOffering(t *testing.T) {
	c, _, store := newTestController(t)

	err := c.Create(context.Background(), Offering{OrderID: "order-1"})
	f := AsFailure(err)
	if f.Code != 400 {
		t.Errorf("Expected 400, got %d", f.Code)
	}
	if f.Message != "This plugin can only provision VMs" {
		t.Errorf("Unexpected message: %q", f.Message)
	}
	if _, found, _ := store.Get(context.Background(), "ORDER-1"); found {
		t.Error("Expected no registry entry")
	}
}

func TestCreateRequiresSSHKey(t *testing.T) {
	c, _, _ := newTestController(t)

	offering := testOffering("order-1")
	offering.VirtualMachine.SSHKeys = nil
	if f := AsFailure(c.Create(context.Background(), offering)); f.Code != 400 {
		t.Errorf("Expected 400, got %d", f.Code)
	}
}

func TestCreateRejectsUnknownUnit(t *testing.T) {
	c, provider, _ := newTestController(t)

	offering := testOffering("order-1")
	offering.VirtualMachine.ServerFlavor.RAM.Unit = "parsec"
	if f := AsFailure(c.Create(context.Background(), offering)); f.Code != 400 {
		t.Errorf("Expected 400, got %d", f.Code)
	}
	if provider.Connects() != 0 {
		t.Error("Expected no provider session for an invalid offering")
	}
}

func TestCreateInsufficientMemoryLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	c, provider, store := newTestController(t)
	provider.Session.Images[0].MinRAMMegabytes = 8192

	err := c.Create(ctx, testOffering("order-1"))
	f := AsFailure(err)
	if f.Code != 400 {
		t.Errorf("Expected 400, got %d", f.Code)
	}

	if _, found, _ := store.Get(ctx, "ORDER-1"); found {
		t.Error("Expected no registry entry after failed create")
	}
	if len(provider.Session.CreatedKeypairs) != 0 {
		t.Error("Expected no keypair creation before resolution succeeds")
	}
	if len(provider.Session.CreatedServers) != 0 {
		t.Error("Expected no server creation")
	}
}

func TestCreateAuthFailure(t *testing.T) {
	c, provider, _ := newTestController(t)
	provider.Session.AuthorizeErr = errors.New("401 unauthorized")

	f := AsFailure(c.Create(context.Background(), testOffering("order-1")))
	if f.Code != 401 {
		t.Errorf("Expected 401, got %d", f.Code)
	}
	if f.Message != "There was a problem with authentication" {
		t.Errorf("Unexpected message: %q", f.Message)
	}
}

func TestCreateServerFailure(t *testing.T) {
	ctx := context.Background()
	c, provider, store := newTestController(t)
	provider.Session.CreateServerErr = errors.New("quota exceeded")

	f := AsFailure(c.Create(ctx, testOffering("order-1")))
	if f.Code != 400 {
		t.Errorf("Expected 400, got %d", f.Code)
	}
	if f.Message != "Unable to create server" {
		t.Errorf("Unexpected message: %q", f.Message)
	}
	if _, found, _ := store.Get(ctx, "ORDER-1"); found {
		t.Error("Expected no registry entry after failed create")
	}
	// the keypair stays behind for a retry or sweep
	if len(provider.Session.CreatedKeypairs) != 1 {
		t.Errorf("Expected keypair to have been created, got %v", provider.Session.CreatedKeypairs)
	}
}

func TestCreateFloatingIPFailureLeavesInstance(t *testing.T) {
	ctx := context.Background()
	c, provider, store := newTestController(t)
	provider.Session.AssignIPErr = errors.New("no external network")

	f := AsFailure(c.Create(ctx, testOffering("order-1")))
	if f.Code != 500 {
		t.Errorf("Expected unclassified 500, got %d", f.Code)
	}
	if _, found, _ := store.Get(ctx, "ORDER-1"); found {
		t.Error("Expected no registry entry when floating IP assignment fails")
	}
	// the instance exists but is orphaned; sweep picks it up later
	if len(provider.Session.Servers) != 1 {
		t.Errorf("Expected instance to remain, got %d", len(provider.Session.Servers))
	}
}

func TestStatusMissingNetworkAddresses(t *testing.T) {
	ctx := context.Background()
	c, provider, _ := newTestController(t)

	if err := c.Create(ctx, testOffering("order-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// provider stopped listing the expected network
	provider.Session.Servers[0].Addresses = map[string][]cloud.Address{
		"other-network": {{Addr: "10.0.0.5", Version: 4, Type: "fixed"}},
	}

	status, err := c.Status(ctx, "order-1")
	f := AsFailure(err)
	if f.Code != 404 {
		t.Errorf("Expected 404, got %d", f.Code)
	}
	if f.Message != "Could not get the VM's public IP address" {
		t.Errorf("Unexpected message: %q", f.Message)
	}
	if status == nil || status.Status != StatusDown {
		t.Errorf("Expected a down status alongside the failure, got %+v", status)
	}
}

func TestStatusAuthFailure(t *testing.T) {
	ctx := context.Background()
	c, provider, _ := newTestController(t)

	if err := c.Create(ctx, testOffering("order-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	provider.Session.AuthorizeErr = errors.New("token expired")

	status, err := c.Status(ctx, "order-1")
	if AsFailure(err).Code != 401 {
		t.Errorf("Expected 401, got %v", err)
	}
	if status == nil || status.Status != StatusDown {
		t.Errorf("Expected a down status alongside the failure, got %+v", status)
	}
}

func TestDestroyUnknownKey(t *testing.T) {
	c, _, _ := newTestController(t)

	f := AsFailure(c.Destroy(context.Background(), "order-1"))
	if f.Code != 404 {
		t.Errorf("Expected 404, got %d", f.Code)
	}
}

func TestDestroyServerAlreadyGone(t *testing.T) {
	ctx := context.Background()
	c, provider, store := newTestController(t)

	if err := c.Create(ctx, testOffering("order-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// instance deleted out of band; destroy still succeeds and cleans up
	provider.Session.Servers = nil

	if err := c.Destroy(ctx, "order-1"); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, found, _ := store.Get(ctx, "ORDER-1"); found {
		t.Error("Expected registry entry to be removed")
	}
	if len(provider.Session.DeletedKeypairs) != 1 {
		t.Errorf("Expected keypair deletion, got %v", provider.Session.DeletedKeypairs)
	}
}

func TestDestroyServerDeletionFailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	c, provider, store := newTestController(t)

	if err := c.Create(ctx, testOffering("order-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	provider.Session.DeleteServerErr = errors.New("409 conflict")

	f := AsFailure(c.Destroy(ctx, "order-1"))
	if f.Code != 404 {
		t.Errorf("Expected 404, got %d", f.Code)
	}
	// entry survives so the destroy can be retried
	if _, found, _ := store.Get(ctx, "ORDER-1"); !found {
		t.Error("Expected registry entry to survive a failed deletion")
	}

	provider.Session.DeleteServerErr = nil
	if err := c.Destroy(ctx, "order-1"); err != nil {
		t.Fatalf("Retried destroy failed: %v", err)
	}
}

func TestUpdateNotImplemented(t *testing.T) {
	c, _, _ := newTestController(t)

	f := AsFailure(c.Update(context.Background(), "order-1", testOffering("order-1")))
	if f.Code != 501 {
		t.Errorf("Expected 501, got %d", f.Code)
	}
	if f.Message != "Update is not implemented" {
		t.Errorf("Unexpected message: %q", f.Message)
	}
}

func TestConcurrentCreateSameKey(t *testing.T) {
	ctx := context.Background()
	c, provider, _ := newTestController(t)

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = c.Create(ctx, testOffering("order-1"))
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if AsFailure(err).Code != 400 {
			t.Errorf("Expected losers to fail with 400, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("Expected exactly one create to win, got %d", succeeded)
	}
	if len(provider.Session.CreatedServers) != 1 {
		t.Errorf("Expected exactly one server, got %d", len(provider.Session.CreatedServers))
	}
}
