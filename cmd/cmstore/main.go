// Package main is the cmstore CLI entry point. It builds, searches and
// inspects stores saved with contextmemory.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/barca7453/ContextMemory"
	"github.com/barca7453/ContextMemory/blobstore"
	"github.com/barca7453/ContextMemory/config"
)

var version = "dev"

const defaultConfigPath = "cmstore.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command := os.Args[1]; command {
	case "build":
		err = runBuild(ctx, os.Args[2:])
	case "search":
		err = runSearch(ctx, os.Args[2:], os.Stdout)
	case "inspect":
		err = runInspect(ctx, os.Args[2:], os.Stdout)
	case "version", "--version", "-v":
		fmt.Printf("cmstore version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: cmstore <command> [flags]

Commands:
  build    add vectors from a JSON-lines file and save the store
  search   query a saved store
  inspect  print the configuration and counters of a saved store
  version  print the version

Run "cmstore <command> -h" for command flags.`)
}

type env struct {
	cfg   *config.Config
	blobs blobstore.BlobStore
	opts  []contextmemory.Option
}

func setup(ctx context.Context, configPath, prefix string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if prefix != "" {
		cfg.Store.Prefix = prefix
	}
	if cfg.Store.Prefix == "" {
		return nil, errors.New("no store prefix: set store.prefix or pass -prefix")
	}

	blobs, err := newBlobStore(ctx, cfg.Backend)
	if err != nil {
		return nil, err
	}
	opts := append(cfg.Options(), contextmemory.WithBlobStore(blobs))
	return &env{cfg: cfg, blobs: blobs, opts: opts}, nil
}

// record is one line of build input.
type record struct {
	ID     uint64    `json:"id"`
	Vector []float32 `json:"vector"`
}

func runBuild(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	prefix := fs.String("prefix", "", "artifact prefix (overrides store.prefix)")
	input := fs.String("input", "-", "JSON-lines input, one {\"id\":..,\"vector\":[..]} per line; - for stdin")
	batchSize := fs.Int("batch", 1000, "entries per batch")
	validate := fs.Bool("validate", true, "skip duplicate ids and wrong-length vectors")
	appendMode := fs.Bool("append", false, "open the existing store instead of creating a new one")
	_ = fs.Parse(args)

	e, err := setup(ctx, *configPath, *prefix)
	if err != nil {
		return err
	}

	var s *contextmemory.Store
	if *appendMode {
		s, err = contextmemory.Open(ctx, e.cfg.Store.Prefix, e.opts...)
	} else {
		s, err = contextmemory.New(e.cfg.Store.Dimension, e.opts...)
	}
	if err != nil {
		return err
	}

	in := os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	stats, err := ingest(ctx, s, in, max(*batchSize, 1), *validate)
	if err != nil {
		return err
	}
	fmt.Printf("read %d, accepted %d, skipped %d\n", stats.read, stats.accepted, stats.read-stats.accepted)
	if stats.truncated {
		fmt.Println("stopped early: index capacity could not grow")
	}

	return s.Save(ctx, e.cfg.Store.Prefix)
}

type ingestStats struct {
	read      int
	accepted  int
	truncated bool
}

// ingest streams JSON-lines records into s in batches.
func ingest(ctx context.Context, s *contextmemory.Store, r io.Reader, batchSize int, validate bool) (ingestStats, error) {
	var stats ingestStats
	batch := make([]contextmemory.Entry, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		report := s.TryAddBatchReport(ctx, batch, validate)
		stats.accepted += len(report.Accepted())
		stats.truncated = report.Truncated
		batch = batch[:0]
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		stats.read++
		batch = append(batch, contextmemory.Entry{ID: rec.ID, Vector: rec.Vector})
		if len(batch) == batchSize {
			flush()
			if stats.truncated {
				return stats, nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return stats, err
	}
	flush()
	return stats, nil
}

func runSearch(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	prefix := fs.String("prefix", "", "artifact prefix (overrides store.prefix)")
	query := fs.String("query", "", "comma-separated query vector")
	k := fs.Int("k", 10, "number of neighbors")
	ef := fs.Int("ef", 0, "query search breadth (0 keeps the saved value)")
	_ = fs.Parse(args)

	q, err := parseVector(*query)
	if err != nil {
		return err
	}

	e, err := setup(ctx, *configPath, *prefix)
	if err != nil {
		return err
	}
	s, err := contextmemory.Open(ctx, e.cfg.Store.Prefix, e.opts...)
	if err != nil {
		return err
	}
	if *ef > 0 {
		s.SetEF(*ef)
	}

	results, err := s.Search(ctx, q, *k)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(out, "%d\t%g\n", r.ID, r.Distance)
	}
	return nil
}

func runInspect(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	prefix := fs.String("prefix", "", "artifact prefix (overrides store.prefix)")
	_ = fs.Parse(args)

	e, err := setup(ctx, *configPath, *prefix)
	if err != nil {
		return err
	}
	s, err := contextmemory.Open(ctx, e.cfg.Store.Prefix, e.opts...)
	if err != nil {
		return err
	}

	cfg := s.Config()
	fmt.Fprintf(out, "dimension:             %d\n", cfg.Dimension)
	fmt.Fprintf(out, "metric:                %s\n", cfg.Metric)
	fmt.Fprintf(out, "capacity:              %d\n", cfg.Capacity)
	fmt.Fprintf(out, "m:                     %d\n", cfg.M)
	fmt.Fprintf(out, "ef_construction:       %d\n", cfg.EFConstruction)
	fmt.Fprintf(out, "ef:                    %d\n", cfg.EF)
	fmt.Fprintf(out, "allow_replace_deleted: %t\n", cfg.AllowReplaceDeleted)
	fmt.Fprintf(out, "reserved:              %d\n", s.ReservedSize())
	fmt.Fprintf(out, "entries:               %d\n", s.Len())
	fmt.Fprintf(out, "next_position:         %d\n", s.NextPosition())
	fmt.Fprintf(out, "index_points:          %d\n", s.IndexLen())

	names, err := e.blobs.List(ctx, e.cfg.Store.Prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintf(out, "artifact:              %s\n", name)
	}
	return nil
}

func parseVector(s string) ([]float32, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("empty query vector")
	}
	parts := strings.Split(s, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("query component %d: %w", i, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}
