// Package natskv provides the production statestore backend over NATS
// JetStream key-value buckets, one bucket per record family. JetStream
// acks every write before the call returns, so a mutation that has
// returned from the backend survives a crash.
package natskv

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/guildflow/errors"
	"github.com/c360/guildflow/natsclient"
	"github.com/c360/guildflow/statestore"
)

// Backend stores each record family in its own JetStream KV bucket.
type Backend struct {
	stores map[statestore.Family]*natsclient.KVStore
}

var _ statestore.Backend = (*Backend)(nil)

// New creates the KV buckets for every record family under the given
// bucket prefix (bucket names are "<prefix>_<family>").
func New(ctx context.Context, client *natsclient.Client, bucketPrefix string) (*Backend, error) {
	if client == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nats client cannot be nil"), "natskv", "New", "validate client")
	}
	if bucketPrefix == "" {
		bucketPrefix = "guildflow"
	}

	stores := make(map[statestore.Family]*natsclient.KVStore, len(statestore.Families()))
	for _, family := range statestore.Families() {
		bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      fmt.Sprintf("%s_%s", bucketPrefix, family),
			Description: fmt.Sprintf("guildflow %s records", family),
		})
		if err != nil {
			return nil, errors.WrapFatal(err, "natskv", "New", fmt.Sprintf("create %s bucket", family))
		}
		stores[family] = natsclient.NewKVStore(bucket)
	}

	return &Backend{stores: stores}, nil
}

func (b *Backend) store(family statestore.Family) (*natsclient.KVStore, error) {
	kv, ok := b.stores[family]
	if !ok {
		return nil, fmt.Errorf("natskv: unknown family %q", family)
	}
	return kv, nil
}

// Get returns the value and revision for a key.
func (b *Backend) Get(ctx context.Context, family statestore.Family, key string) ([]byte, uint64, error) {
	kv, err := b.store(family)
	if err != nil {
		return nil, 0, err
	}
	entry, err := kv.Get(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	return entry.Value, entry.Revision, nil
}

// Put stores a value unconditionally.
func (b *Backend) Put(ctx context.Context, family statestore.Family, key string, value []byte) error {
	kv, err := b.store(family)
	if err != nil {
		return err
	}
	_, err = kv.Put(ctx, key, value)
	return err
}

// Create stores a value only if the key is absent.
func (b *Backend) Create(ctx context.Context, family statestore.Family, key string, value []byte) error {
	kv, err := b.store(family)
	if err != nil {
		return err
	}
	_, err = kv.Create(ctx, key, value)
	return err
}

// Update stores a value only if the current revision matches.
func (b *Backend) Update(ctx context.Context, family statestore.Family, key string, value []byte, revision uint64) error {
	kv, err := b.store(family)
	if err != nil {
		return err
	}
	_, err = kv.Update(ctx, key, value, revision)
	return err
}

// Delete removes a key.
func (b *Backend) Delete(ctx context.Context, family statestore.Family, key string) error {
	kv, err := b.store(family)
	if err != nil {
		return err
	}
	return kv.Delete(ctx, key)
}

// Keys lists all keys in a family.
func (b *Backend) Keys(ctx context.Context, family statestore.Family) ([]string, error) {
	kv, err := b.store(family)
	if err != nil {
		return nil, err
	}
	return kv.Keys(ctx)
}

// IsNotFound classifies key-absent errors.
func (b *Backend) IsNotFound(err error) bool {
	return natsclient.IsKVNotFoundError(err)
}

// IsConflict classifies create/update conflicts.
func (b *Backend) IsConflict(err error) bool {
	return natsclient.IsKVConflictError(err)
}
