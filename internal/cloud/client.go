// Package cloud abstracts the compute provider behind a session-scoped
// capability interface. The provisioning logic only ever talks to these
// interfaces; concrete adapters translate them to provider SDK calls.
package cloud

import (
	"context"
	"errors"
)

// Provider-native server states the plugin understands. Adapters translate
// their SDK's vocabulary into these two; anything else is passed through raw.
const (
	ServerStatusActive   = "ACTIVE"
	ServerStatusBuilding = "BUILDING"
)

// ErrDuplicateResource is returned by the Find* calls when more than one
// resource carries the requested name.
var ErrDuplicateResource = errors.New("duplicate resource")

// Image is a bootable machine image.
type Image struct {
	ID   string
	Name string
	// Minimum RAM in MB required to boot the image; 0 when the provider
	// does not publish one.
	MinRAMMegabytes int
	// Minimum boot disk in GB; 0 when unpublished.
	MinDiskGigabytes int
}

// Flavor is a provider-defined size class (CPU/RAM/disk bundle).
type Flavor struct {
	ID   string
	Name string
}

// Network is a provider-side network a server can be attached to.
type Network struct {
	ID   string
	Name string
}

// Keypair is an SSH public key record registered with the provider.
type Keypair struct {
	Name        string
	PublicKey   string
	Fingerprint string
}

// Address is a single address attached to a server.
type Address struct {
	Addr    string
	Version int    // 4 or 6
	Type    string // "fixed" or "floating"
}

// Server is a provider-side instance. Addresses is keyed by network name,
// with the fixed address listed before any floating one.
type Server struct {
	ID        string
	Name      string
	Status    string
	Addresses map[string][]Address
}

// CreateServerRequest carries the resolved references needed to launch an
// instance.
type CreateServerRequest struct {
	Name        string
	ImageID     string
	FlavorID    string
	NetworkID   string
	KeypairName string
}

// Session is one authenticated connection to the provider. Sessions are
// opened per plugin operation and must be closed by the caller, also on
// error paths. The Find* calls report absence as (nil, nil); only transport
// or API faults surface as errors, except ErrDuplicateResource for
// ambiguous names.
type Session interface {
	// Authorize probes the credentials and fails fast when they are bad.
	// Every other call requires a successful Authorize first.
	Authorize(ctx context.Context) error

	FindImage(ctx context.Context, name string) (*Image, error)
	FindFlavor(ctx context.Context, name string) (*Flavor, error)
	FindNetwork(ctx context.Context, name string) (*Network, error)

	// FlavorName derives the provider's deterministic size-class name for
	// the given shape, e.g. SCS-2V-2-10 on OpenStack.
	FlavorName(cores, memoryGB, diskGB int) string

	FindKeypair(ctx context.Context, name string) (*Keypair, error)
	CreateKeypair(ctx context.Context, name, publicKey string) (*Keypair, error)
	DeleteKeypair(ctx context.Context, name string) error

	ListServers(ctx context.Context) ([]Server, error)
	CreateServer(ctx context.Context, req CreateServerRequest) (*Server, error)
	// WaitForServer blocks until the server reaches the given status or the
	// provider-side timeout expires.
	WaitForServer(ctx context.Context, id, status string) (*Server, error)
	GetServer(ctx context.Context, id string) (*Server, error)
	FindServer(ctx context.Context, name string) (*Server, error)
	DeleteServer(ctx context.Context, id string) error

	// AssignFloatingIP attaches a public address to the server and returns it.
	AssignFloatingIP(ctx context.Context, serverID string) (string, error)

	Close()
}

// Provider opens authenticated sessions against one compute provider
// account.
type Provider interface {
	Connect(ctx context.Context) (Session, error)
}
