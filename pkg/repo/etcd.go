package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const keyPrefix = "/idgov.io"

// EtcdStore persists records as JSON values under kind-scoped key prefixes.
type EtcdStore struct {
	client *clientv3.Client
	prefix string
}

func NewEtcdStore(endpoints []string, timeout time.Duration) (*EtcdStore, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdStore{client: cli, prefix: keyPrefix}, nil
}

func (s *EtcdStore) Client() *clientv3.Client { return s.client }

func (s *EtcdStore) key(kind, id string) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, kind, id)
}

func (s *EtcdStore) Get(ctx context.Context, kind, id string, out any) error {
	resp, err := s.client.Get(ctx, s.key(kind, id))
	if err != nil {
		return err
	}
	if len(resp.Kvs) == 0 {
		return ErrNotFound
	}
	return json.Unmarshal(resp.Kvs[0].Value, out)
}

func (s *EtcdStore) Put(ctx context.Context, kind, id string, obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	_, err = s.client.Put(ctx, s.key(kind, id), string(data))
	return err
}

func (s *EtcdStore) Delete(ctx context.Context, kind, id string) error {
	_, err := s.client.Delete(ctx, s.key(kind, id))
	return err
}

func (s *EtcdStore) List(ctx context.Context, kind string) ([][]byte, error) {
	resp, err := s.client.Get(ctx, fmt.Sprintf("%s/%s/", s.prefix, kind), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	var out [][]byte
	for _, kv := range resp.Kvs {
		out = append(out, kv.Value)
	}
	return out, nil
}

// Watch exposes change notification for one kind; the task host uses it to
// react to config changes without polling.
func (s *EtcdStore) Watch(ctx context.Context, kind string) clientv3.WatchChan {
	return s.client.Watch(ctx, fmt.Sprintf("%s/%s/", s.prefix, kind), clientv3.WithPrefix())
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}

// EtcdRunGuard serializes runs per config with an etcd mutex, closing the
// check-then-write race of a plain "already running" precondition.
type EtcdRunGuard struct {
	client *clientv3.Client
}

func NewEtcdRunGuard(s *EtcdStore) *EtcdRunGuard {
	return &EtcdRunGuard{client: s.client}
}

func (g *EtcdRunGuard) Acquire(ctx context.Context, configID string) (func(), error) {
	session, err := concurrency.NewSession(g.client, concurrency.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("run guard session: %w", err)
	}

	mutex := concurrency.NewMutex(session, fmt.Sprintf("%s/run-locks/%s", keyPrefix, configID))
	if err := mutex.TryLock(ctx); err != nil {
		_ = session.Close()
		if err == concurrency.ErrLocked {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("run guard lock: %w", err)
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mutex.Unlock(ctx)
		_ = session.Close()
	}
	return release, nil
}
