package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdPrefix = "/configurations/"

// EtcdStore is the persistent registry backend. Handles are stored as JSON
// under /configurations/<KEY> so a restarted plugin keeps controlling the
// instances it created.
type EtcdStore struct {
	client *clientv3.Client
}

// NewEtcdStore connects to etcd at the given endpoints.
func NewEtcdStore(endpoints []string) (*EtcdStore, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &EtcdStore{client: cli}, nil
}

func (s *EtcdStore) Get(ctx context.Context, key string) (Handle, bool, error) {
	resp, err := s.client.Get(ctx, etcdPrefix+key)
	if err != nil {
		return Handle{}, false, fmt.Errorf("failed to get configuration from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return Handle{}, false, nil
	}
	var h Handle
	if err := json.Unmarshal(resp.Kvs[0].Value, &h); err != nil {
		return Handle{}, false, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return h, true, nil
}

func (s *EtcdStore) Put(ctx context.Context, key string, handle Handle) error {
	data, err := json.Marshal(handle)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	if _, err := s.client.Put(ctx, etcdPrefix+key, string(data)); err != nil {
		return fmt.Errorf("failed to save configuration to etcd: %w", err)
	}
	return nil
}

func (s *EtcdStore) Remove(ctx context.Context, key string) error {
	if _, err := s.client.Delete(ctx, etcdPrefix+key); err != nil {
		return fmt.Errorf("failed to delete configuration from etcd: %w", err)
	}
	return nil
}

func (s *EtcdStore) Keys(ctx context.Context) ([]string, error) {
	resp, err := s.client.Get(ctx, etcdPrefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to list configurations from etcd: %w", err)
	}
	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, strings.TrimPrefix(string(kv.Key), etcdPrefix))
	}
	return keys, nil
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}
