package cloud

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"tellusnode/internal/config"

	"github.com/digitalocean/godo"
)

// DOProvider opens sessions against a DigitalOcean account.
type DOProvider struct {
	cfg config.DigitalOceanConfig
}

// NewDOProvider creates a provider from a DigitalOcean API token.
func NewDOProvider(cfg config.DigitalOceanConfig) *DOProvider {
	return &DOProvider{cfg: cfg}
}

func (p *DOProvider) Connect(ctx context.Context) (Session, error) {
	return &doSession{
		cfg:    p.cfg,
		client: godo.NewFromToken(p.cfg.Token),
	}, nil
}

type doSession struct {
	cfg    config.DigitalOceanConfig
	client *godo.Client
}

func (s *doSession) Authorize(ctx context.Context) error {
	if _, _, err := s.client.Account.Get(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	return nil
}

func (s *doSession) FindImage(ctx context.Context, name string) (*Image, error) {
	opt := &godo.ListOptions{PerPage: 200}
	for {
		imgs, resp, err := s.client.Images.List(ctx, opt)
		if err != nil {
			return nil, fmt.Errorf("failed to list images: %w", err)
		}
		for _, img := range imgs {
			if img.Name == name || img.Slug == name {
				return &Image{
					ID:   strconv.Itoa(img.ID),
					Name: img.Name,
					// DigitalOcean does not publish a RAM floor
					MinDiskGigabytes: img.MinDiskSize,
				}, nil
			}
		}
		if resp.Links == nil || resp.Links.IsLastPage() {
			return nil, nil
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, err
		}
		opt.Page = page + 1
	}
}

// FlavorName maps the requested shape onto the droplet size slugs, the same
// convention the sizes API exposes. Disk is implied by the slug.
func (s *doSession) FlavorName(cores, memoryGB, diskGB int) string {
	return fmt.Sprintf("s-%dvcpu-%dgb", cores, memoryGB)
}

func (s *doSession) FindFlavor(ctx context.Context, name string) (*Flavor, error) {
	sizes, _, err := s.client.Sizes.List(ctx, &godo.ListOptions{PerPage: 200})
	if err != nil {
		return nil, fmt.Errorf("failed to list sizes: %w", err)
	}
	for _, sz := range sizes {
		if sz.Slug == name {
			return &Flavor{ID: sz.Slug, Name: sz.Slug}, nil
		}
	}
	return nil, nil
}

func (s *doSession) FindNetwork(ctx context.Context, name string) (*Network, error) {
	vpcs, _, err := s.client.VPCs.List(ctx, &godo.ListOptions{PerPage: 200})
	if err != nil {
		return nil, fmt.Errorf("failed to list VPCs: %w", err)
	}
	for _, v := range vpcs {
		if v.Name == name {
			return &Network{ID: v.ID, Name: v.Name}, nil
		}
	}
	return nil, nil
}

func (s *doSession) FindKeypair(ctx context.Context, name string) (*Keypair, error) {
	keys, _, err := s.client.Keys.List(ctx, &godo.ListOptions{PerPage: 200})
	if err != nil {
		return nil, fmt.Errorf("failed to list SSH keys: %w", err)
	}
	var matches []godo.Key
	for _, k := range keys {
		if k.Name == name {
			matches = append(matches, k)
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		k := matches[0]
		return &Keypair{Name: k.Name, PublicKey: k.PublicKey, Fingerprint: k.Fingerprint}, nil
	default:
		// DigitalOcean allows several keys under the same name
		return nil, ErrDuplicateResource
	}
}

func (s *doSession) CreateKeypair(ctx context.Context, name, publicKey string) (*Keypair, error) {
	k, _, err := s.client.Keys.Create(ctx, &godo.KeyCreateRequest{
		Name:      name,
		PublicKey: publicKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH key: %w", err)
	}
	return &Keypair{Name: k.Name, PublicKey: k.PublicKey, Fingerprint: k.Fingerprint}, nil
}

func (s *doSession) DeleteKeypair(ctx context.Context, name string) error {
	kp, err := s.FindKeypair(ctx, name)
	if err != nil {
		return err
	}
	if kp == nil {
		return nil
	}
	if _, err := s.client.Keys.DeleteByFingerprint(ctx, kp.Fingerprint); err != nil {
		return fmt.Errorf("failed to delete SSH key: %w", err)
	}
	return nil
}

func (s *doSession) ListServers(ctx context.Context) ([]Server, error) {
	var out []Server
	opt := &godo.ListOptions{PerPage: 200}
	for {
		droplets, resp, err := s.client.Droplets.List(ctx, opt)
		if err != nil {
			return nil, fmt.Errorf("failed to list droplets: %w", err)
		}
		for i := range droplets {
			out = append(out, *s.toServer(&droplets[i]))
		}
		if resp.Links == nil || resp.Links.IsLastPage() {
			return out, nil
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, err
		}
		opt.Page = page + 1
	}
}

func (s *doSession) CreateServer(ctx context.Context, req CreateServerRequest) (*Server, error) {
	kp, err := s.FindKeypair(ctx, req.KeypairName)
	if err != nil {
		return nil, err
	}
	if kp == nil {
		return nil, fmt.Errorf("SSH key %s not found", req.KeypairName)
	}

	imageID, err := strconv.Atoi(req.ImageID)
	if err != nil {
		return nil, fmt.Errorf("invalid image ID: %w", err)
	}

	droplet, _, err := s.client.Droplets.Create(ctx, &godo.DropletCreateRequest{
		Name:    req.Name,
		Region:  s.cfg.Region,
		Size:    req.FlavorID,
		Image:   godo.DropletCreateImage{ID: imageID},
		SSHKeys: []godo.DropletCreateSSHKey{{Fingerprint: kp.Fingerprint}},
		VPCUUID: req.NetworkID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create droplet: %w", err)
	}
	return s.toServer(droplet), nil
}

func (s *doSession) WaitForServer(ctx context.Context, id, status string) (*Server, error) {
	for i := 0; i < 60; i++ {
		srv, err := s.GetServer(ctx, id)
		if err != nil {
			return nil, err
		}
		if srv.Status == status {
			return srv, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	return nil, fmt.Errorf("timed out waiting for droplet to reach status %s", status)
}

func (s *doSession) GetServer(ctx context.Context, id string) (*Server, error) {
	dropletID, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("invalid droplet ID: %w", err)
	}
	droplet, _, err := s.client.Droplets.Get(ctx, dropletID)
	if err != nil {
		return nil, fmt.Errorf("failed to get droplet: %w", err)
	}
	return s.toServer(droplet), nil
}

func (s *doSession) FindServer(ctx context.Context, name string) (*Server, error) {
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

func (s *doSession) DeleteServer(ctx context.Context, id string) error {
	dropletID, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("invalid droplet ID: %w", err)
	}
	if _, err := s.client.Droplets.Delete(ctx, dropletID); err != nil {
		return fmt.Errorf("failed to delete droplet: %w", err)
	}
	return nil
}

func (s *doSession) AssignFloatingIP(ctx context.Context, serverID string) (string, error) {
	dropletID, err := strconv.Atoi(serverID)
	if err != nil {
		return "", fmt.Errorf("invalid droplet ID: %w", err)
	}
	fip, _, err := s.client.FloatingIPs.Create(ctx, &godo.FloatingIPCreateRequest{
		DropletID: dropletID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create floating IP: %w", err)
	}
	return fip.IP, nil
}

func (s *doSession) Close() {}

// toServer maps droplet state and networks onto the session contract. The
// droplet's addresses are listed under <region>-network, private before
// public, so the floating address lands at index 1.
func (s *doSession) toServer(d *godo.Droplet) *Server {
	status := d.Status
	switch status {
	case "active":
		status = ServerStatusActive
	case "new":
		status = ServerStatusBuilding
	}

	addrs := make([]Address, 0, 2)
	if d.Networks != nil {
		for _, n := range d.Networks.V4 {
			if n.Type == "private" {
				addrs = append(addrs, Address{Addr: n.IPAddress, Version: 4, Type: "fixed"})
			}
		}
		for _, n := range d.Networks.V4 {
			if n.Type == "public" {
				addrs = append(addrs, Address{Addr: n.IPAddress, Version: 4, Type: "floating"})
			}
		}
	}

	return &Server{
		ID:        strconv.Itoa(d.ID),
		Name:      d.Name,
		Status:    status,
		Addresses: map[string][]Address{s.cfg.Region + "-network": addrs},
	}
}
