// Package config loads and validates the reconstruction service's
// configuration: an optional TOML file layered under built-in defaults,
// then checked by Validator before the server starts.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pelletier/go-toml/v2"
)

// Config groups the service's tunables by concern, mirroring the
// component split in SPEC_FULL.md §2.
type Config struct {
	Server Server `toml:"server"`
	Solver Solver `toml:"solver"`
	Store  Store  `toml:"store"`
	Render Render `toml:"render"`
}

// Server controls C6's admission control and HTTP listener.
type Server struct {
	Addr              string  `toml:"addr"`
	MaxConcurrentJobs int     `toml:"max_concurrent_jobs"`
	MinFreeRAMMB      float64 `toml:"min_free_ram_mb"`
	AdmissionWaitMS   int     `toml:"admission_wait_ms"`
}

// Solver controls C4's iteration bounds.
type Solver struct {
	MaxIter int     `toml:"max_iter"`
	Tol     float64 `toml:"tol"`
}

// Store controls C1's CSV parsing and where input and output files live.
// The binary side-cache is always written next to its source CSV.
type Store struct {
	CSVDelimiter string `toml:"csv_delimiter"`
	// CacheDir is the directory rendered output rasters are written to;
	// client-supplied nome_arquivo_base is resolved against it via
	// pkg/pathutil.SafeJoin. "" means the current working directory.
	CacheDir string `toml:"cache_dir"`
	// DataDir is the trusted root that client-supplied caminho_h and
	// caminho_g fragments are resolved against via pkg/pathutil.SafeJoin
	// before any file is opened, so a request can never read outside of it.
	DataDir string `toml:"data_dir"`
}

// Render controls C5's default post-processing and output format.
type Render struct {
	CleanDefault      bool    `toml:"clean_default"`
	PercentileDefault float64 `toml:"percentile_default"`
	Format            string  `toml:"format"` // "pgm" or "png"
}

// Load reads an optional TOML file at path and returns a fully defaulted,
// validated Config. A missing file is not an error — defaults apply,
// matching the teacher's LoadKDL nil-on-missing-file convention.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return finalize(cfg)
			}
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	return finalize(cfg)
}

func finalize(cfg *Config) (*Config, error) {
	v := NewValidator()
	if err := v.ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration: worker pool of 4, 500 MiB
// free-RAM advisory floor, CGNR defaults of 10 iterations / 1e-4
// tolerance, comma-delimited CSV, PGM output — all per spec.md §4.4,
// §4.6, §4.1 and §6.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:              ":5001",
			MaxConcurrentJobs: 4,
			MinFreeRAMMB:      500.0,
			AdmissionWaitMS:   2000,
		},
		Solver: Solver{
			MaxIter: 10,
			Tol:     1e-4,
		},
		Store: Store{
			CSVDelimiter: ",",
			CacheDir:     "",
			DataDir:      ".",
		},
		Render: Render{
			CleanDefault:      true,
			PercentileDefault: 98.0,
			Format:            "pgm",
		},
	}
}

// NumCPUFallback is exposed so callers (e.g. the CLI's --workers=0 auto
// flag) can mirror the teacher's cores-minus-one heuristic for worker
// pool sizing when the operator does not pin a value.
func NumCPUFallback() int {
	if n := runtime.NumCPU() - 1; n > 0 {
		return n
	}
	return 1
}
