package provisioning

import (
	"context"
	"math"
	"net/http"
	"strings"
	"sync"

	"tellusnode/internal/cloud"
	"tellusnode/internal/logging"
	"tellusnode/internal/registry"
	"tellusnode/internal/sshkey"

	"go.uber.org/zap"
)

// Options configures a Controller.
type Options struct {
	// ImageName is the boot image used for every VM, e.g. "Ubuntu 24.04".
	ImageName string
	// NamePrefix is prepended to the Order Key to form provider-side
	// server and keypair names.
	NamePrefix string
	// NetworkName is the project-derived network servers attach to.
	NetworkName string
}

// Controller orchestrates create/status/destroy against the registry and
// the compute provider. Operations on the same Order Key are serialized by
// a per-key lock; operations on different keys run independently.
type Controller struct {
	store    registry.Store
	provider cloud.Provider
	resolver *Resolver
	opts     Options

	locks keyedLocks
}

// NewController creates a controller over the given registry store and
// provider.
func NewController(store registry.Store, provider cloud.Provider, opts Options) *Controller {
	return &Controller{
		store:    store,
		provider: provider,
		resolver: &Resolver{NetworkName: opts.NetworkName},
		opts:     opts,
	}
}

// Create provisions one VM for the offering's order. On success a registry
// entry is written; on any failure nothing is written and partially created
// provider resources are left behind for a later retry or sweep.
func (c *Controller) Create(ctx context.Context, offering Offering) error {
	key := OrderKey(offering.OrderID)
	defer c.locks.lock(key)()

	logging.Logger().Info("CREATE RESOURCE", zap.String("key", key))

	_, found, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if found {
		logging.Logger().Warn("duplicate order key", zap.String("key", key))
		return Failf(http.StatusBadRequest, "VM with key '%s' already exists", offering.OrderID)
	}

	if offering.VirtualMachine == nil {
		return Failf(http.StatusBadRequest, "This plugin can only provision VMs")
	}
	vm := offering.VirtualMachine
	if len(vm.SSHKeys) == 0 {
		return Failf(http.StatusBadRequest, "At least one SSH key is required")
	}

	memory, err := vm.ServerFlavor.RAM.Gigabytes()
	if err != nil {
		return Failf(http.StatusBadRequest, "Invalid RAM quantity: %s", err)
	}
	disk, err := vm.ServerFlavor.BootVolume.Gigabytes()
	if err != nil {
		return Failf(http.StatusBadRequest, "Invalid boot volume quantity: %s", err)
	}
	cores := int(math.Round(vm.ServerFlavor.CPU.Cores))

	publicKey := vm.SSHKeys[0]
	if fp, err := sshkey.Fingerprint(publicKey); err == nil {
		logging.Logger().Info("offered SSH key", zap.String("fingerprint", fp))
	} else {
		// the provider stays the authority on key validity
		logging.Logger().Warn("could not parse offered SSH key", zap.Error(err))
	}

	session, err := c.provider.Connect(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Authorize(ctx); err != nil {
		logging.Logger().Error("authorization failed", zap.Error(err))
		return Failf(http.StatusUnauthorized, "There was a problem with authentication")
	}

	// The registry can desynchronize from provider state (process restart
	// with the in-memory store), so also scan provider-side names.
	servers, err := session.ListServers(ctx)
	if err != nil {
		return err
	}
	for _, srv := range servers {
		if strings.Contains(srv.Name, key) {
			return Failf(http.StatusBadRequest, "VM with key '%s' already exists", key)
		}
	}

	resolved, err := c.resolver.Resolve(ctx, session, c.opts.ImageName, memory, cores, disk)
	if err != nil {
		return err
	}

	name := c.opts.NamePrefix + key
	keypair, err := EnsureKeypair(ctx, session, name, publicKey)
	if err != nil {
		return err
	}

	server, err := session.CreateServer(ctx, cloud.CreateServerRequest{
		Name:        name,
		ImageID:     resolved.Image.ID,
		FlavorID:    resolved.Flavor.ID,
		NetworkID:   resolved.Network.ID,
		KeypairName: keypair.Name,
	})
	if err != nil {
		logging.Logger().Error("server creation failed", zap.Error(err))
		return Failf(http.StatusBadRequest, "Unable to create server")
	}

	server, err = session.WaitForServer(ctx, server.ID, cloud.ServerStatusActive)
	if err != nil {
		logging.Logger().Error("server did not become active", zap.Error(err))
		return Failf(http.StatusBadRequest, "Unable to create server")
	}

	// From here on the instance exists; failures leave it running without a
	// registry entry (inconsistency window, resolved by destroy or sweep).
	ip, err := session.AssignFloatingIP(ctx, server.ID)
	if err != nil {
		return err
	}

	if err := c.store.Put(ctx, key, registry.Handle{Type: "vm", ID: server.ID}); err != nil {
		return err
	}

	logging.Logger().Info("SERVER created",
		zap.String("key", key),
		zap.String("id", server.ID),
		zap.String("floating_ip", ip))
	return nil
}

// Status derives the configuration's normalized state from live provider
// state. Nothing is cached between calls.
func (c *Controller) Status(ctx context.Context, key string) (*Status, error) {
	upper := OrderKey(key)
	defer c.locks.lock(upper)()

	logging.Logger().Info("STATUS RESOURCE", zap.String("key", upper))

	handle, found, err := c.store.Get(ctx, upper)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, Failf(http.StatusNotFound, "Unknown configuration '%s'", key)
	}

	// Failure results below carry Status "down" so the caller-facing body
	// keeps the normalized shape even when the lookup itself failed. Only
	// an unknown configuration has no status at all.
	session, err := c.provider.Connect(ctx)
	if err != nil {
		return &Status{Status: StatusDown}, err
	}
	defer session.Close()

	if err := session.Authorize(ctx); err != nil {
		return &Status{Status: StatusDown}, Failf(http.StatusUnauthorized, "There was a problem with authentication")
	}

	server, err := session.GetServer(ctx, handle.ID)
	if err != nil {
		return &Status{Status: StatusDown}, err
	}
	logging.Logger().Debug("server state",
		zap.String("id", server.ID),
		zap.String("status", logging.Truncate(server.Status)))

	ip, err := ExtractFloatingIP(server, c.opts.NetworkName)
	if err != nil {
		logging.Logger().Error("floating IP extraction failed", zap.Error(err))
		return &Status{Status: StatusDown}, Failf(http.StatusNotFound, "Could not get the VM's public IP address")
	}

	ips := []IPAddress{{Type: "ipv4", Prefix: "32", Value: ip}}
	return NormalizeStatus(server, ips), nil
}

// Destroy tears down the configuration's server and keypair, then removes
// the registry entry. The entry survives failed deletions so the call can be
// retried; absence of either resource counts as already deleted.
func (c *Controller) Destroy(ctx context.Context, key string) error {
	upper := OrderKey(key)
	defer c.locks.lock(upper)()

	logging.Logger().Info("DESTROY RESOURCE", zap.String("key", upper))

	_, found, err := c.store.Get(ctx, upper)
	if err != nil {
		return err
	}
	if !found {
		return Failf(http.StatusNotFound, "Unknown configuration '%s'", key)
	}

	session, err := c.provider.Connect(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Authorize(ctx); err != nil {
		return Failf(http.StatusUnauthorized, "There was a problem with authentication")
	}

	name := c.opts.NamePrefix + upper

	server, err := session.FindServer(ctx, name)
	if err != nil {
		return Failf(http.StatusNotFound, "Unable to delete server %s", name)
	}
	if server != nil {
		if err := session.DeleteServer(ctx, server.ID); err != nil {
			logging.Logger().Error("server deletion failed", zap.Error(err))
			return Failf(http.StatusNotFound, "Unable to delete server %s", name)
		}
	}

	keypair, err := session.FindKeypair(ctx, name)
	if err != nil {
		return Failf(http.StatusNotFound, "Unable to delete keypair %s", name)
	}
	if keypair != nil {
		if err := session.DeleteKeypair(ctx, name); err != nil {
			logging.Logger().Error("keypair deletion failed", zap.Error(err))
			return Failf(http.StatusNotFound, "Unable to delete keypair %s", name)
		}
	}

	return c.store.Remove(ctx, upper)
}

// Update is not supported; there is no in-place resize or reconfiguration.
func (c *Controller) Update(ctx context.Context, key string, offering Offering) error {
	return Failf(http.StatusNotImplemented, "Update is not implemented")
}

// keyedLocks serializes operations per Order Key. Entries are never freed;
// the set of distinct keys a node handles is small.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *keyedLocks) lock(key string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
