package cloud

import (
	"context"
	"fmt"
	"sync"
)

// FakeProvider is an in-memory Provider used by tests. It hands out a single
// shared FakeSession so tests can seed provider state up front and inspect
// mutations afterwards.
type FakeProvider struct {
	Session    *FakeSession
	ConnectErr error

	mu       sync.Mutex
	connects int
}

// NewFakeProvider returns a provider wrapping a fresh FakeSession.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{Session: NewFakeSession()}
}

func (p *FakeProvider) Connect(ctx context.Context) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	p.connects++
	return p.Session, nil
}

// Connects reports how many sessions were opened.
func (p *FakeProvider) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

// FakeSession implements Session against in-memory state with per-call
// error injection.
type FakeSession struct {
	mu sync.Mutex

	Images   []Image
	Flavors  []Flavor
	Networks []Network
	Keypairs []Keypair
	Servers  []Server

	AuthorizeErr     error
	CreateKeypairErr error
	DeleteKeypairErr error
	CreateServerErr  error
	WaitErr          error
	GetServerErr     error
	ListServersErr   error
	DeleteServerErr  error
	AssignIPErr      error

	// FloatingIP is handed out by AssignFloatingIP; defaults to 203.0.113.10.
	FloatingIP string

	CreatedKeypairs []string
	DeletedKeypairs []string
	CreatedServers  []CreateServerRequest
	DeletedServers  []string
	CloseCalls      int

	nextID int
}

// NewFakeSession returns an empty session.
func NewFakeSession() *FakeSession {
	return &FakeSession{FloatingIP: "203.0.113.10"}
}

func (s *FakeSession) Authorize(ctx context.Context) error {
	return s.AuthorizeErr
}

func (s *FakeSession) FindImage(ctx context.Context, name string) (*Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Images {
		if s.Images[i].Name == name {
			img := s.Images[i]
			return &img, nil
		}
	}
	return nil, nil
}

func (s *FakeSession) FlavorName(cores, memoryGB, diskGB int) string {
	return fmt.Sprintf("SCS-%dV-%d-%d", cores, memoryGB, diskGB)
}

func (s *FakeSession) FindFlavor(ctx context.Context, name string) (*Flavor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Flavors {
		if s.Flavors[i].Name == name {
			f := s.Flavors[i]
			return &f, nil
		}
	}
	return nil, nil
}

func (s *FakeSession) FindNetwork(ctx context.Context, name string) (*Network, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Networks {
		if s.Networks[i].Name == name {
			n := s.Networks[i]
			return &n, nil
		}
	}
	return nil, nil
}

func (s *FakeSession) FindKeypair(ctx context.Context, name string) (*Keypair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []Keypair
	for _, kp := range s.Keypairs {
		if kp.Name == name {
			matches = append(matches, kp)
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		kp := matches[0]
		return &kp, nil
	default:
		return nil, ErrDuplicateResource
	}
}

func (s *FakeSession) CreateKeypair(ctx context.Context, name, publicKey string) (*Keypair, error) {
	if s.CreateKeypairErr != nil {
		return nil, s.CreateKeypairErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kp := Keypair{Name: name, PublicKey: publicKey, Fingerprint: "fa:ke"}
	s.Keypairs = append(s.Keypairs, kp)
	s.CreatedKeypairs = append(s.CreatedKeypairs, name)
	return &kp, nil
}

func (s *FakeSession) DeleteKeypair(ctx context.Context, name string) error {
	if s.DeleteKeypairErr != nil {
		return s.DeleteKeypairErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.Keypairs[:0]
	for _, kp := range s.Keypairs {
		if kp.Name != name {
			kept = append(kept, kp)
		}
	}
	s.Keypairs = kept
	s.DeletedKeypairs = append(s.DeletedKeypairs, name)
	return nil
}

func (s *FakeSession) ListServers(ctx context.Context) ([]Server, error) {
	if s.ListServersErr != nil {
		return nil, s.ListServersErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Server, len(s.Servers))
	copy(out, s.Servers)
	return out, nil
}

func (s *FakeSession) CreateServer(ctx context.Context, req CreateServerRequest) (*Server, error) {
	if s.CreateServerErr != nil {
		return nil, s.CreateServerErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	netName := ""
	for _, n := range s.Networks {
		if n.ID == req.NetworkID {
			netName = n.Name
		}
	}

	s.nextID++
	srv := Server{
		ID:     fmt.Sprintf("srv-%d", s.nextID),
		Name:   req.Name,
		Status: ServerStatusBuilding,
		Addresses: map[string][]Address{
			netName: {{Addr: fmt.Sprintf("10.0.0.%d", s.nextID), Version: 4, Type: "fixed"}},
		},
	}
	s.Servers = append(s.Servers, srv)
	s.CreatedServers = append(s.CreatedServers, req)
	return copyServer(&srv), nil
}

func (s *FakeSession) WaitForServer(ctx context.Context, id, status string) (*Server, error) {
	if s.WaitErr != nil {
		return nil, s.WaitErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Servers {
		if s.Servers[i].ID == id {
			s.Servers[i].Status = status
			return copyServer(&s.Servers[i]), nil
		}
	}
	return nil, fmt.Errorf("server %s not found", id)
}

func (s *FakeSession) GetServer(ctx context.Context, id string) (*Server, error) {
	if s.GetServerErr != nil {
		return nil, s.GetServerErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Servers {
		if s.Servers[i].ID == id {
			return copyServer(&s.Servers[i]), nil
		}
	}
	return nil, fmt.Errorf("server %s not found", id)
}

func (s *FakeSession) FindServer(ctx context.Context, name string) (*Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Servers {
		if s.Servers[i].Name == name {
			return copyServer(&s.Servers[i]), nil
		}
	}
	return nil, nil
}

func (s *FakeSession) DeleteServer(ctx context.Context, id string) error {
	if s.DeleteServerErr != nil {
		return s.DeleteServerErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.Servers[:0]
	for _, srv := range s.Servers {
		if srv.ID != id {
			kept = append(kept, srv)
		}
	}
	s.Servers = kept
	s.DeletedServers = append(s.DeletedServers, id)
	return nil
}

func (s *FakeSession) AssignFloatingIP(ctx context.Context, serverID string) (string, error) {
	if s.AssignIPErr != nil {
		return "", s.AssignIPErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Servers {
		if s.Servers[i].ID == serverID {
			for netName := range s.Servers[i].Addresses {
				s.Servers[i].Addresses[netName] = append(s.Servers[i].Addresses[netName],
					Address{Addr: s.FloatingIP, Version: 4, Type: "floating"})
			}
			return s.FloatingIP, nil
		}
	}
	return "", fmt.Errorf("server %s not found", serverID)
}

func (s *FakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
}

func copyServer(srv *Server) *Server {
	out := *srv
	out.Addresses = make(map[string][]Address, len(srv.Addresses))
	for k, v := range srv.Addresses {
		addrs := make([]Address, len(v))
		copy(addrs, v)
		out.Addresses[k] = addrs
	}
	return &out
}
