package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/vqvae/blobstore"
	"github.com/hupe1980/vqvae/codec"
)

// ErrNoCheckpoints is returned by Latest when the store holds none.
var ErrNoCheckpoints = errors.New("no checkpoints found")

const checkpointPrefix = "ckpt/"

// Manager saves and restores checkpoints in a blobstore.Store.
// Names are derived from the step, so lexicographic order matches
// step order.
type Manager struct {
	store       blobstore.Store
	codec       codec.Codec
	compression Compression
	keep        int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCodec sets the payload codec (default codec.Default).
func WithCodec(c codec.Codec) ManagerOption {
	return func(m *Manager) { m.codec = c }
}

// WithCompression sets the payload compression (default zstd).
func WithCompression(c Compression) ManagerOption {
	return func(m *Manager) { m.compression = c }
}

// WithKeep bounds how many checkpoints survive pruning (default 3,
// 0 disables pruning).
func WithKeep(n int) ManagerOption {
	return func(m *Manager) { m.keep = n }
}

// NewManager creates a Manager backed by store.
func NewManager(store blobstore.Store, optFns ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		compression: CompressionZSTD,
		keep:        3,
	}
	for _, fn := range optFns {
		fn(m)
	}
	return m
}

func blobName(step uint64) string {
	return fmt.Sprintf("%sstep-%012d", checkpointPrefix, step)
}

// Save writes the checkpoint and prunes old ones.
func (m *Manager) Save(ctx context.Context, ckpt *Checkpoint) error {
	data, err := Encode(ckpt, m.codec, m.compression)
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, blobName(ckpt.Step), data); err != nil {
		return fmt.Errorf("save checkpoint step %d: %w", ckpt.Step, err)
	}
	return m.prune(ctx)
}

// Load reads one checkpoint by name.
func (m *Manager) Load(ctx context.Context, name string) (*Checkpoint, error) {
	data, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", name, err)
	}
	return Decode(data)
}

// Latest loads the checkpoint with the highest step, or
// ErrNoCheckpoints.
func (m *Manager) Latest(ctx context.Context) (*Checkpoint, error) {
	names, err := m.store.List(ctx, checkpointPrefix)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoCheckpoints
	}

	sort.Strings(names)
	return m.Load(ctx, names[len(names)-1])
}

// prune removes all but the newest keep checkpoints.
func (m *Manager) prune(ctx context.Context) error {
	if m.keep <= 0 {
		return nil
	}

	names, err := m.store.List(ctx, checkpointPrefix)
	if err != nil {
		return err
	}
	if len(names) <= m.keep {
		return nil
	}

	sort.Strings(names)
	for _, name := range names[:len(names)-m.keep] {
		if err := m.store.Delete(ctx, name); err != nil {
			return fmt.Errorf("prune checkpoint %s: %w", name, err)
		}
	}
	return nil
}
