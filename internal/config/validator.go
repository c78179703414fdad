package config

import "fmt"

// Validator checks a Config for invalid combinations and fills in any
// zero-valued non-boolean field left unset by an operator's TOML file
// (boolean fields are kept as given), mirroring the
// teacher's ValidateAndSetDefaults shape: one method per sub-struct,
// called in sequence.
type Validator struct{}

// NewValidator returns a ready-to-use Validator. It carries no state;
// the type exists so the validation pipeline reads the same way the
// teacher's config package does.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates cfg in place, filling any zero
// non-boolean field with its built-in default and returning an error for any combination
// that cannot be defaulted away (e.g. a negative worker count).
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := v.validateSolver(&cfg.Solver); err != nil {
		return fmt.Errorf("solver config: %w", err)
	}
	if err := v.validateStore(&cfg.Store); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if err := v.validateRender(&cfg.Render); err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	return nil
}

func (v *Validator) validateServer(s *Server) error {
	d := Default().Server

	if s.Addr == "" {
		s.Addr = d.Addr
	}
	if s.MaxConcurrentJobs == 0 {
		s.MaxConcurrentJobs = d.MaxConcurrentJobs
	}
	if s.MaxConcurrentJobs < 0 {
		return fmt.Errorf("max_concurrent_jobs must be positive, got %d", s.MaxConcurrentJobs)
	}
	if s.MinFreeRAMMB == 0 {
		s.MinFreeRAMMB = d.MinFreeRAMMB
	}
	if s.MinFreeRAMMB < 0 {
		return fmt.Errorf("min_free_ram_mb must not be negative, got %f", s.MinFreeRAMMB)
	}
	if s.AdmissionWaitMS == 0 {
		s.AdmissionWaitMS = d.AdmissionWaitMS
	}
	if s.AdmissionWaitMS < 0 {
		return fmt.Errorf("admission_wait_ms must not be negative, got %d", s.AdmissionWaitMS)
	}
	return nil
}

func (v *Validator) validateSolver(s *Solver) error {
	d := Default().Solver

	if s.MaxIter == 0 {
		s.MaxIter = d.MaxIter
	}
	if s.MaxIter < 1 {
		return fmt.Errorf("max_iter must be at least 1, got %d", s.MaxIter)
	}
	if s.Tol == 0 {
		s.Tol = d.Tol
	}
	if s.Tol < 0 {
		return fmt.Errorf("tol must not be negative, got %f", s.Tol)
	}
	return nil
}

func (v *Validator) validateStore(s *Store) error {
	d := Default().Store

	if s.CSVDelimiter == "" {
		s.CSVDelimiter = d.CSVDelimiter
	}
	if len(s.CSVDelimiter) != 1 {
		return fmt.Errorf("csv_delimiter must be a single character, got %q", s.CSVDelimiter)
	}
	if s.DataDir == "" {
		s.DataDir = d.DataDir
	}
	// CacheDir left empty is valid: output rasters then go to the current
	// working directory.
	return nil
}

func (v *Validator) validateRender(r *Render) error {
	d := Default().Render

	if r.PercentileDefault == 0 {
		r.PercentileDefault = d.PercentileDefault
	}
	if r.PercentileDefault < 0 || r.PercentileDefault > 100 {
		return fmt.Errorf("percentile_default must be within [0,100], got %f", r.PercentileDefault)
	}
	if r.Format == "" {
		r.Format = d.Format
	}
	if r.Format != "pgm" && r.Format != "png" {
		return fmt.Errorf("format must be \"pgm\" or \"png\", got %q", r.Format)
	}
	return nil
}

// ValidateConfig is a convenience wrapper for callers that don't need a
// Validator instance of their own, matching the teacher's top-level
// ValidateConfig helper.
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
