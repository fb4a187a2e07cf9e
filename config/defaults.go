package config

import "github.com/barca7453/ContextMemory"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Store.Capacity == 0 {
		cfg.Store.Capacity = contextmemory.DefaultCapacity
	}
	if cfg.Store.M == 0 {
		cfg.Store.M = contextmemory.DefaultM
	}
	if cfg.Store.EFConstruction == 0 {
		cfg.Store.EFConstruction = contextmemory.DefaultEFConstruction
	}
	if cfg.Store.EF == 0 {
		cfg.Store.EF = contextmemory.DefaultEF
	}
	if cfg.Store.AllowReplaceDeleted == nil {
		t := contextmemory.DefaultAllowReplaceDeleted
		cfg.Store.AllowReplaceDeleted = &t
	}
	if cfg.Store.Metric == "" {
		cfg.Store.Metric = "l2"
	}
	if cfg.Store.Index == "" {
		cfg.Store.Index = "hnsw"
	}
	if cfg.Store.Compression == "" {
		cfg.Store.Compression = "none"
	}
	if cfg.Store.ReserveChunk == 0 {
		cfg.Store.ReserveChunk = 1000
	}
	if cfg.Backend.Type == "" {
		cfg.Backend.Type = BackendLocal
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
