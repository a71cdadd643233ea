// Package config parses the VMSIM_REAL_MEM_SIZE environment variable into
// a validated arena configuration, failing loudly on a bad value rather
// than silently clamping it.
package config

import (
	"fmt"
	"strconv"

	"vmsim/internal/pagetable"
)

const (
	// DefaultArenaSize is used when VMSIM_REAL_MEM_SIZE is unset: 4 MiB + 16 KiB.
	DefaultArenaSize = 4*1024*1024 + 16*1024

	// PTAreaSize is the fixed size of the page-table sub-arena: 4 MiB + 4 KiB.
	// It is not configurable; only the overall arena size is.
	PTAreaSize = 4*1024*1024 + 4*1024

	// EnvRealMemSize is the environment variable name consulted by Load.
	EnvRealMemSize = "VMSIM_REAL_MEM_SIZE"
)

// Config is the validated arena configuration.
type Config struct {
	ArenaSize  uint32
	PTAreaSize uint32
}

// Load reads EnvRealMemSize via getenv (pass os.Getenv in production code;
// tests pass a map-backed stand-in) and validates it. An unset or empty
// value yields DefaultArenaSize. A present value must be a decimal,
// strictly greater than PTAreaSize, and a multiple of the page size.
func Load(getenv func(string) string) (Config, error) {
	raw := getenv(EnvRealMemSize)
	size := uint64(DefaultArenaSize)
	if raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s=%q is not a decimal byte count: %w", EnvRealMemSize, raw, err)
		}
		size = v
	}
	if size <= PTAreaSize {
		return Config{}, fmt.Errorf("config: %s=%d must be greater than the page-table area size %d", EnvRealMemSize, size, PTAreaSize)
	}
	if size%pagetable.PageSize != 0 {
		return Config{}, fmt.Errorf("config: %s=%d must be a multiple of the page size %d", EnvRealMemSize, size, pagetable.PageSize)
	}
	return Config{ArenaSize: uint32(size), PTAreaSize: PTAreaSize}, nil
}
