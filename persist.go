package contextmemory

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/barca7453/ContextMemory/blobstore"
	"github.com/barca7453/ContextMemory/idmap"
	"github.com/barca7453/ContextMemory/persistence"
	"github.com/barca7453/ContextMemory/resource"
)

// Save writes the index, the mapping and the metadata under prefix, in that
// order, while holding the write lock.
//
// Each artifact becomes visible only once it is completely written. A
// failure does not roll back artifacts already written by this call.
func (s *Store) Save(ctx context.Context, prefix string) (err error) {
	start := time.Now()
	var written int64
	entries := 0
	defer func() {
		s.opts.metricsCollector.RecordSave(written, time.Since(start), err)
		s.opts.logger.LogSnapshot(ctx, prefix, entries, err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.opts.controller.AcquireSnapshot(ctx); err != nil {
		return &ErrIO{Op: "save", Name: prefix, cause: err}
	}
	defer s.opts.controller.ReleaseSnapshot()

	entries = s.ids.Len()
	meta := s.cfg.metadata(s.ids.Reserved())

	artifacts := []struct {
		name  string
		write func(io.Writer) error
	}{
		{persistence.IndexName(prefix), s.idx.Save},
		{persistence.MappingName(prefix), func(w io.Writer) error {
			return persistence.WriteMapping(w, s.ids.Reverse(), s.ids.All())
		}},
		{persistence.MetadataName(prefix), func(w io.Writer) error {
			return persistence.WriteMetadata(w, meta)
		}},
	}
	for _, a := range artifacts {
		n, err := s.writeArtifact(ctx, a.name, a.write)
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (s *Store) writeArtifact(ctx context.Context, name string, write func(io.Writer) error) (int64, error) {
	blob, err := s.opts.blobStore.Create(ctx, name)
	if err != nil {
		return 0, &ErrIO{Op: "create", Name: name, cause: err}
	}

	cw := &countingWriter{w: resource.NewRateLimitedWriter(ctx, blob, s.opts.controller)}
	bw := bufio.NewWriter(cw)
	if err := write(bw); err != nil {
		_ = blob.Abort()
		return 0, artifactError("write", name, err)
	}
	if err := bw.Flush(); err != nil {
		_ = blob.Abort()
		return 0, &ErrIO{Op: "write", Name: name, cause: err}
	}
	if err := blob.Close(); err != nil {
		return 0, &ErrIO{Op: "close", Name: name, cause: err}
	}
	return cw.n, nil
}

func (s *Store) readArtifact(ctx context.Context, name string, read func(r io.Reader, size int64) error) error {
	blob, err := s.opts.blobStore.Open(ctx, name)
	if err != nil {
		return &ErrIO{Op: "open", Name: name, cause: err}
	}
	defer blob.Close()

	r := bufio.NewReader(resource.NewRateLimitedReader(ctx, blobstore.NewReader(blob), s.opts.controller))
	return artifactError("read", name, read(r, blob.Size()))
}

// Load replaces the store's state with the artifacts saved under prefix.
//
// The metadata is read first and decides the configuration of a fresh
// index, which then loads its native form; the mapping comes last. Sizes
// that disagree between the artifacts are reported as *ErrCorruptData. The
// store is only modified once all three succeed. The loaded entry count is
// not checked against the index's own element count; use IndexLen for that.
func (s *Store) Load(ctx context.Context, prefix string) (err error) {
	start := time.Now()
	entries := 0
	defer func() {
		s.opts.metricsCollector.RecordLoad(entries, time.Since(start), err)
		s.opts.logger.LogLoad(ctx, prefix, entries, err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	var meta persistence.Metadata
	err = s.readArtifact(ctx, persistence.MetadataName(prefix), func(r io.Reader, size int64) error {
		var err error
		meta, err = persistence.ReadMetadata(r, size)
		return err
	})
	if err != nil {
		return err
	}

	cfg := configFromMetadata(meta, s.cfg.Metric)
	metaName := persistence.MetadataName(prefix)

	// The index is sized by its native form, not by the metadata.
	empty := cfg.annConfig()
	empty.Capacity = 0
	idx, err := s.opts.factory(empty)
	if err != nil {
		return &ErrCorruptData{Name: metaName, Reason: "unusable configuration", cause: err}
	}

	err = s.readArtifact(ctx, persistence.IndexName(prefix), func(r io.Reader, _ int64) error {
		return idx.Load(r, 0)
	})
	if err != nil {
		return err
	}
	if idx.Capacity() != cfg.Capacity {
		return &ErrCorruptData{Name: metaName, Reason: fmt.Sprintf("capacity %d disagrees with index capacity %d", cfg.Capacity, idx.Capacity())}
	}
	idx.SetEF(cfg.EF)

	var mapping *persistence.Mapping
	err = s.readArtifact(ctx, persistence.MappingName(prefix), func(r io.Reader, size int64) error {
		var err error
		mapping, err = persistence.ReadMapping(r, size)
		return err
	})
	if err != nil {
		return err
	}
	if count := uint64(len(mapping.Reverse)); count > uint64(cfg.Capacity) {
		return &ErrCorruptData{Name: persistence.MappingName(prefix), Reason: fmt.Sprintf("%d entries exceed capacity %d", count, cfg.Capacity)}
	}
	if meta.ReservedSize < uint64(len(mapping.Reverse)) {
		return &ErrCorruptData{Name: metaName, Reason: fmt.Sprintf("reserved size %d below %d mapped positions", meta.ReservedSize, len(mapping.Reverse))}
	}

	if s.growth != nil {
		s.growth.Release()
	}
	s.cfg = cfg
	s.idx = idx
	s.ids = idmap.Restore(mapping.Reverse, mapping.Forward, int(meta.ReservedSize))
	s.growth = s.newGrowth()

	entries = s.ids.Len()
	return nil
}
