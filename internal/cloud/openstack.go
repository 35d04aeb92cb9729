package cloud

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tellusnode/internal/config"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/keypairs"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/v2/openstack/image/v2/images"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/extensions/external"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/extensions/layer3/floatingips"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/ports"
	"github.com/hashicorp/go-retryablehttp"
)

const serverActiveTimeout = 5 * time.Minute

// OpenStackProvider opens sessions against an OpenStack project.
type OpenStackProvider struct {
	cfg config.OpenStackConfig
}

// NewOpenStackProvider creates a provider from OpenStack RC parameters.
func NewOpenStackProvider(cfg config.OpenStackConfig) *OpenStackProvider {
	return &OpenStackProvider{cfg: cfg}
}

// Connect builds the unauthenticated client. Authentication happens in
// Authorize so that credential failures are observed by the probe, not here.
func (p *OpenStackProvider) Connect(ctx context.Context) (Session, error) {
	client, err := openstack.NewClient(p.cfg.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenStack client: %w", err)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	client.HTTPClient = *rc.StandardClient()

	return &openstackSession{cfg: p.cfg, client: client}, nil
}

type openstackSession struct {
	cfg    config.OpenStackConfig
	client *gophercloud.ProviderClient

	compute *gophercloud.ServiceClient
	image   *gophercloud.ServiceClient
	network *gophercloud.ServiceClient
}

func (s *openstackSession) Authorize(ctx context.Context) error {
	opts := gophercloud.AuthOptions{
		IdentityEndpoint: s.cfg.AuthURL,
		Username:         s.cfg.Username,
		Password:         s.cfg.Password,
		DomainName:       s.cfg.UserDomain,
		AllowReauth:      true,
		Scope: &gophercloud.AuthScope{
			ProjectName: s.cfg.ProjectName,
			DomainID:    s.cfg.ProjectDomain,
		},
	}

	if err := openstack.Authenticate(ctx, s.client, opts); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	eo := gophercloud.EndpointOpts{Region: s.cfg.Region}

	var err error
	if s.compute, err = openstack.NewComputeV2(s.client, eo); err != nil {
		return fmt.Errorf("failed to locate compute endpoint: %w", err)
	}
	if s.image, err = openstack.NewImageV2(s.client, eo); err != nil {
		return fmt.Errorf("failed to locate image endpoint: %w", err)
	}
	if s.network, err = openstack.NewNetworkV2(s.client, eo); err != nil {
		return fmt.Errorf("failed to locate network endpoint: %w", err)
	}
	return nil
}

func (s *openstackSession) FindImage(ctx context.Context, name string) (*Image, error) {
	pages, err := images.List(s.image, images.ListOpts{Name: name}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	all, err := images.ExtractImages(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to extract images: %w", err)
	}
	if len(all) == 0 {
		return nil, nil
	}
	img := all[0]
	return &Image{
		ID:               img.ID,
		Name:             img.Name,
		MinRAMMegabytes:  img.MinRAMMegabytes,
		MinDiskGigabytes: img.MinDiskGigabytes,
	}, nil
}

// FlavorName renders the SCS standardized size-class name, e.g. SCS-2V-2-10.
func (s *openstackSession) FlavorName(cores, memoryGB, diskGB int) string {
	return fmt.Sprintf("SCS-%dV-%d-%d", cores, memoryGB, diskGB)
}

func (s *openstackSession) FindFlavor(ctx context.Context, name string) (*Flavor, error) {
	pages, err := flavors.ListDetail(s.compute, flavors.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flavors: %w", err)
	}
	all, err := flavors.ExtractFlavors(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to extract flavors: %w", err)
	}
	for _, f := range all {
		if f.Name == name {
			return &Flavor{ID: f.ID, Name: f.Name}, nil
		}
	}
	return nil, nil
}

func (s *openstackSession) FindNetwork(ctx context.Context, name string) (*Network, error) {
	pages, err := networks.List(s.network, networks.ListOpts{Name: name}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}
	all, err := networks.ExtractNetworks(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to extract networks: %w", err)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return &Network{ID: all[0].ID, Name: all[0].Name}, nil
}

func (s *openstackSession) FindKeypair(ctx context.Context, name string) (*Keypair, error) {
	pages, err := keypairs.List(s.compute, nil).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keypairs: %w", err)
	}
	all, err := keypairs.ExtractKeyPairs(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to extract keypairs: %w", err)
	}
	var matches []keypairs.KeyPair
	for _, kp := range all {
		if kp.Name == name {
			matches = append(matches, kp)
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		kp := matches[0]
		return &Keypair{Name: kp.Name, PublicKey: kp.PublicKey, Fingerprint: kp.Fingerprint}, nil
	default:
		return nil, ErrDuplicateResource
	}
}

func (s *openstackSession) CreateKeypair(ctx context.Context, name, publicKey string) (*Keypair, error) {
	kp, err := keypairs.Create(ctx, s.compute, keypairs.CreateOpts{
		Name:      name,
		PublicKey: publicKey,
	}).Extract()
	if err != nil {
		return nil, fmt.Errorf("failed to create keypair: %w", err)
	}
	return &Keypair{Name: kp.Name, PublicKey: kp.PublicKey, Fingerprint: kp.Fingerprint}, nil
}

func (s *openstackSession) DeleteKeypair(ctx context.Context, name string) error {
	if err := keypairs.Delete(ctx, s.compute, name, nil).ExtractErr(); err != nil {
		return fmt.Errorf("failed to delete keypair: %w", err)
	}
	return nil
}

func (s *openstackSession) ListServers(ctx context.Context) ([]Server, error) {
	pages, err := servers.List(s.compute, servers.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	all, err := servers.ExtractServers(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to extract servers: %w", err)
	}
	out := make([]Server, 0, len(all))
	for i := range all {
		out = append(out, *toServer(&all[i]))
	}
	return out, nil
}

func (s *openstackSession) CreateServer(ctx context.Context, req CreateServerRequest) (*Server, error) {
	base := servers.CreateOpts{
		Name:      req.Name,
		ImageRef:  req.ImageID,
		FlavorRef: req.FlavorID,
		Networks:  []servers.Network{{UUID: req.NetworkID}},
		Metadata:  map[string]string{"created_by": "tellus-node"},
	}
	opts := keypairs.CreateOptsExt{
		CreateOptsBuilder: base,
		KeyName:           req.KeypairName,
	}
	srv, err := servers.Create(ctx, s.compute, opts, nil).Extract()
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	return toServer(srv), nil
}

func (s *openstackSession) WaitForServer(ctx context.Context, id, status string) (*Server, error) {
	waitCtx, cancel := context.WithTimeout(ctx, serverActiveTimeout)
	defer cancel()

	if err := servers.WaitForStatus(waitCtx, s.compute, id, status); err != nil {
		return nil, fmt.Errorf("server did not reach status %s: %w", status, err)
	}
	return s.GetServer(ctx, id)
}

func (s *openstackSession) GetServer(ctx context.Context, id string) (*Server, error) {
	srv, err := servers.Get(ctx, s.compute, id).Extract()
	if err != nil {
		return nil, fmt.Errorf("failed to get server %s: %w", id, err)
	}
	return toServer(srv), nil
}

func (s *openstackSession) FindServer(ctx context.Context, name string) (*Server, error) {
	all, err := s.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == name {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (s *openstackSession) DeleteServer(ctx context.Context, id string) error {
	if err := servers.Delete(ctx, s.compute, id).ExtractErr(); err != nil {
		if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete server %s: %w", id, err)
	}
	return nil
}

func (s *openstackSession) AssignFloatingIP(ctx context.Context, serverID string) (string, error) {
	portPages, err := ports.List(s.network, ports.ListOpts{DeviceID: serverID}).AllPages(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list ports: %w", err)
	}
	prts, err := ports.ExtractPorts(portPages)
	if err != nil {
		return "", fmt.Errorf("failed to extract ports: %w", err)
	}
	if len(prts) == 0 {
		return "", fmt.Errorf("no port found for server %s", serverID)
	}

	extNetID, err := s.externalNetworkID(ctx)
	if err != nil {
		return "", err
	}

	fip, err := floatingips.Create(ctx, s.network, floatingips.CreateOpts{
		FloatingNetworkID: extNetID,
		PortID:            prts[0].ID,
	}).Extract()
	if err != nil {
		return "", fmt.Errorf("failed to create floating IP: %w", err)
	}
	return fip.FloatingIP, nil
}

func (s *openstackSession) externalNetworkID(ctx context.Context) (string, error) {
	isExternal := true
	opts := external.ListOptsExt{
		ListOptsBuilder: networks.ListOpts{},
		External:        &isExternal,
	}
	pages, err := networks.List(s.network, opts).AllPages(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list external networks: %w", err)
	}
	all, err := networks.ExtractNetworks(pages)
	if err != nil {
		return "", fmt.Errorf("failed to extract external networks: %w", err)
	}
	if len(all) == 0 {
		return "", fmt.Errorf("no external network available")
	}
	return all[0].ID, nil
}

func (s *openstackSession) Close() {}

// toServer converts the Nova address structure (network name -> list of
// address dicts) into the session contract. Entry order within a network is
// preserved: Nova lists the fixed address first and the floating one second.
func toServer(srv *servers.Server) *Server {
	out := &Server{
		ID:        srv.ID,
		Name:      srv.Name,
		Status:    srv.Status,
		Addresses: make(map[string][]Address),
	}
	for netName, raw := range srv.Addresses {
		entries, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, e := range entries {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			addr := Address{Version: 4}
			if v, ok := m["addr"].(string); ok {
				addr.Addr = v
			}
			if v, ok := m["version"].(float64); ok {
				addr.Version = int(v)
			}
			if v, ok := m["OS-EXT-IPS:type"].(string); ok {
				addr.Type = v
			}
			out.Addresses[netName] = append(out.Addresses[netName], addr)
		}
	}
	return out
}
