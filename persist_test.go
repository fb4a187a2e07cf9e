package contextmemory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/barca7453/ContextMemory/ann"
	"github.com/barca7453/ContextMemory/ann/flat"
	"github.com/barca7453/ContextMemory/ann/hnsw"
	"github.com/barca7453/ContextMemory/blobstore"
	"github.com/barca7453/ContextMemory/distance"
	"github.com/barca7453/ContextMemory/persistence"
	"github.com/barca7453/ContextMemory/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore remembers which artifacts were opened and can fail Create.
type recordingStore struct {
	*blobstore.MemoryStore

	mu         sync.Mutex
	opened     []string
	failCreate string
}

func (r *recordingStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	r.mu.Lock()
	r.opened = append(r.opened, name)
	r.mu.Unlock()
	return r.MemoryStore.Open(ctx, name)
}

func (r *recordingStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if name == r.failCreate {
		return nil, errors.New("disk full")
	}
	return r.MemoryStore.Create(ctx, name)
}

func fillStore(t *testing.T, s *Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := range n {
		require.NoError(t, s.Add(ctx, uint64(1000+7*i), vec(i)))
	}
}

func TestSaveClearLoad(t *testing.T) {
	factories := map[string]ann.Factory{
		"flat": flat.Factory(),
		"hnsw": hnsw.Factory(),
		"hnsw-zstd": hnsw.Factory(func(o *hnsw.Options) {
			o.Compression = persistence.CompressionZstd
		}),
	}

	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			bs := blobstore.NewMemoryStore()
			s := newTestStore(t, WithIndexFactory(factory), WithBlobStore(bs), WithCapacity(8), WithEF(32))
			fillStore(t, s, 20)

			query := vec(5)
			before, err := s.Search(ctx, query, 5)
			require.NoError(t, err)
			forward := s.Forward()
			next := s.NextPosition()

			require.NoError(t, s.Save(ctx, "stores/docs"))
			for _, artifact := range []string{"stores/docs.hnsw", "stores/docs.hnsw.map", "stores/docs.hnsw.meta"} {
				_, ok := bs.Bytes(artifact)
				assert.True(t, ok, artifact)
			}

			s.Reset(ctx)
			require.Zero(t, s.NextPosition())

			require.NoError(t, s.Load(ctx, "stores/docs"))
			assert.Equal(t, next, s.NextPosition())
			assert.Equal(t, forward, s.Forward())
			assert.Equal(t, 32, s.EF())
			assert.Equal(t, 32, s.Capacity())

			after, err := s.Search(ctx, query, 5)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestSave_MetadataLayout(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	s := newTestStore(t, WithBlobStore(bs), WithCapacity(3), WithM(12), WithEFConstruction(100), WithEF(20), WithAllowReplaceDeleted(false))
	fillStore(t, s, 4)
	require.NoError(t, s.Save(ctx, "p"))

	raw, ok := bs.Bytes("p.hnsw.meta")
	require.True(t, ok)
	require.Len(t, raw, persistence.MetadataSize)

	blob, err := bs.Open(ctx, "p.hnsw.meta")
	require.NoError(t, err)
	meta, err := persistence.ReadMetadata(blobstore.NewReader(blob), blob.Size())
	require.NoError(t, err)
	assert.Equal(t, persistence.Metadata{
		Dimension:           testDim,
		Capacity:            6,
		M:                   12,
		EFConstruction:      100,
		EF:                  20,
		AllowReplaceDeleted: false,
		ReservedSize:        1000,
	}, meta)

	raw, ok = bs.Bytes("p.hnsw.map")
	require.True(t, ok)
	assert.Len(t, raw, 8+4*8+4*16)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	prefix := filepath.Join(dir, "docs")

	s, err := New(testDim, WithCapacity(4), WithM(8))
	require.NoError(t, err)
	fillStore(t, s, 10)
	require.NoError(t, s.Save(ctx, prefix))

	for _, suffix := range []string{".hnsw", ".hnsw.map", ".hnsw.meta"} {
		_, err := os.Stat(prefix + suffix)
		require.NoError(t, err, suffix)
	}

	reopened, err := Open(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, testDim, reopened.Dimension())
	assert.Equal(t, 8, reopened.M())
	assert.Equal(t, 16, reopened.Capacity())
	assert.Equal(t, uint64(10), reopened.NextPosition())
	assert.Equal(t, 10, reopened.IndexLen())
	assert.Equal(t, s.Forward(), reopened.Forward())

	res, err := reopened.Search(ctx, vec(3), 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, uint64(1000+7*3), res[0].ID)

	// The reopened store keeps growing from where it stopped.
	require.NoError(t, reopened.Add(ctx, 1, vec(40)))
	pos, ok := reopened.Position(1)
	require.True(t, ok)
	assert.Equal(t, uint64(10), pos)
}

func TestLoad_MissingMetadata(t *testing.T) {
	ctx := context.Background()
	rs := &recordingStore{MemoryStore: blobstore.NewMemoryStore()}
	s := newTestStore(t, WithBlobStore(rs))
	fillStore(t, s, 3)
	require.NoError(t, s.Save(ctx, "a"))
	require.NoError(t, rs.Delete(ctx, "a.hnsw.meta"))
	rs.opened = nil

	err := s.Load(ctx, "a")
	var ioErr *ErrIO
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "a.hnsw.meta", ioErr.Name)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.Equal(t, []string{"a.hnsw.meta"}, rs.opened)

	// The failed load left the store alone.
	assert.Equal(t, uint64(3), s.NextPosition())

	_, err = Open(ctx, "a", WithBlobStore(rs))
	require.ErrorAs(t, err, &ioErr)
}

func TestLoad_CorruptMapping(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(raw []byte) []byte
	}{
		{"zero count", func(raw []byte) []byte {
			return make([]byte, 8)
		}},
		{"truncated", func(raw []byte) []byte {
			return raw[:len(raw)-5]
		}},
		{"count beyond length", func(raw []byte) []byte {
			out := append([]byte(nil), raw...)
			persistence.ByteOrder.PutUint64(out, 1000)
			return out
		}},
		{"empty", func(raw []byte) []byte {
			return nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			bs := blobstore.NewMemoryStore()
			s := newTestStore(t, WithBlobStore(bs))
			fillStore(t, s, 3)
			require.NoError(t, s.Save(ctx, "m"))

			raw, ok := bs.Bytes("m.hnsw.map")
			require.True(t, ok)
			require.NoError(t, bs.Put(ctx, "m.hnsw.map", tt.mutate(raw)))

			s.Reset(ctx)
			err := s.Load(ctx, "m")
			var corrupt *ErrCorruptData
			require.ErrorAs(t, err, &corrupt)
			assert.Equal(t, "m.hnsw.map", corrupt.Name)
			assert.Zero(t, s.NextPosition())
		})
	}
}

func TestLoad_SizesOutOfRange(t *testing.T) {
	// Byte offsets of size fields: metadata capacity and reserved size, and
	// the saved capacity that follows tag, magic, version, metric and
	// dimension in both native forms.
	const (
		metaCapacity = 8
		metaReserved = 41
		nativeCap    = 18
	)

	tests := []struct {
		name     string
		factory  ann.Factory
		artifact string
		offset   int
		value    uint64
	}{
		{"metadata capacity", flat.Factory(), "z.hnsw.meta", metaCapacity, 1 << 61},
		{"metadata capacity disagrees", flat.Factory(), "z.hnsw.meta", metaCapacity, 1 << 20},
		{"metadata reserved size", flat.Factory(), "z.hnsw.meta", metaReserved, 1 << 61},
		{"reserved below mapped positions", flat.Factory(), "z.hnsw.meta", metaReserved, 1},
		{"flat saved capacity", flat.Factory(), "z.hnsw", nativeCap, 1 << 61},
		{"hnsw saved capacity", hnsw.Factory(), "z.hnsw", nativeCap, 1 << 61},
		{"hnsw saved capacity unchecked", hnsw.Factory(), "z.hnsw", nativeCap, 1 << 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			bs := blobstore.NewMemoryStore()
			s := newTestStore(t, WithIndexFactory(tt.factory), WithBlobStore(bs))
			fillStore(t, s, 3)
			require.NoError(t, s.Save(ctx, "z"))

			raw, ok := bs.Bytes(tt.artifact)
			require.True(t, ok)
			persistence.ByteOrder.PutUint64(raw[tt.offset:], tt.value)
			require.NoError(t, bs.Put(ctx, tt.artifact, raw))

			s.Reset(ctx)
			err := s.Load(ctx, "z")
			var corrupt *ErrCorruptData
			require.ErrorAs(t, err, &corrupt)
			assert.Equal(t, tt.artifact, corrupt.Name)
			assert.Zero(t, s.NextPosition())
		})
	}
}

func TestLoad_EmptyStoreIsCorrupt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Save(ctx, "empty"))

	err := s.Load(ctx, "empty")
	var corrupt *ErrCorruptData
	require.ErrorAs(t, err, &corrupt)
}

func TestLoad_CorruptIndex(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	s := newTestStore(t, WithBlobStore(bs))
	fillStore(t, s, 3)
	require.NoError(t, s.Save(ctx, "c"))

	raw, _ := bs.Bytes("c.hnsw")
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, bs.Put(ctx, "c.hnsw", raw))

	err := s.Load(ctx, "c")
	var corrupt *ErrCorruptData
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, "c.hnsw", corrupt.Name)
	assert.ErrorIs(t, err, persistence.ErrCorrupt)
}

func TestLoad_MetricMismatch(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	s := newTestStore(t, WithBlobStore(bs))
	fillStore(t, s, 3)
	require.NoError(t, s.Save(ctx, "x"))

	_, err := Open(ctx, "x",
		WithBlobStore(bs),
		WithIndexFactory(flat.Factory()),
		WithMetric(distance.MetricInnerProduct),
	)
	var corrupt *ErrCorruptData
	require.ErrorAs(t, err, &corrupt)
	assert.ErrorIs(t, err, ann.ErrIncompatible)
}

func TestSave_CreateFailure(t *testing.T) {
	ctx := context.Background()
	rs := &recordingStore{MemoryStore: blobstore.NewMemoryStore(), failCreate: "f.hnsw.map"}
	metrics := &BasicMetricsCollector{}
	s := newTestStore(t, WithBlobStore(rs), WithMetricsCollector(metrics))
	fillStore(t, s, 2)

	err := s.Save(ctx, "f")
	var ioErr *ErrIO
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "create", ioErr.Op)
	assert.Equal(t, "f.hnsw.map", ioErr.Name)

	// The index artifact written before the failure stays.
	_, ok := rs.Bytes("f.hnsw")
	assert.True(t, ok)
	_, ok = rs.Bytes("f.hnsw.meta")
	assert.False(t, ok)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.SaveErrors)
}

func TestSave_ResourceController(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{
		MaxConcurrentSnapshots: 1,
		IOLimitBytesPerSec:     1 << 30,
		MemoryLimitBytes:       1 << 20,
	})
	metrics := &BasicMetricsCollector{}
	s := newTestStore(t, WithResourceController(rc), WithCapacity(2), WithMetricsCollector(metrics))
	fillStore(t, s, 5)
	assert.Positive(t, rc.MemoryUsage())

	require.NoError(t, s.Save(ctx, "r"))
	// Save handed its snapshot slot back.
	slotCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, rc.AcquireSnapshot(slotCtx))
	rc.ReleaseSnapshot()
	assert.Positive(t, metrics.GetStats().SaveBytes)

	require.NoError(t, s.Load(ctx, "r"))
	assert.Zero(t, rc.MemoryUsage())
}

func TestAdd_MemoryBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1})
	s := newTestStore(t, WithResourceController(rc), WithCapacity(1))

	require.NoError(t, s.Add(ctx, 1, vec(1)))
	err := s.Add(ctx, 2, vec(2))
	var capErr *ErrCapacityExceeded
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 1, s.Capacity())
}
