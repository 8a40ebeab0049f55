package worker

import "testing"

func TestNewFlagSetDefaults(t *testing.T) {
	var cfg Config
	fs := NewFlagSet("waps", &cfg)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.SubscribeAddress != DefaultSubscribeAddress {
		t.Fatalf("subscribe address = %q, want %q", cfg.SubscribeAddress, DefaultSubscribeAddress)
	}
	if cfg.BasePeriodMS != DefaultBasePeriodMS {
		t.Fatalf("period = %d, want %d", cfg.BasePeriodMS, DefaultBasePeriodMS)
	}
	if cfg.EnableForward || cfg.EnableGates || cfg.DisableShift {
		t.Fatal("boolean flags should default to false")
	}
}

func TestResolveVerbosityPicksVeryVerboseOverVerbose(t *testing.T) {
	var cfg Config
	fs := NewFlagSet("waps", &cfg)
	if err := fs.Parse([]string{"-v", "-V"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ResolveVerbosity(fs, &cfg)
	if cfg.Verbosity != 2 {
		t.Fatalf("Verbosity = %d, want 2", cfg.Verbosity)
	}
}

func TestResolveVerbosityPlainVerbose(t *testing.T) {
	var cfg Config
	fs := NewFlagSet("waps", &cfg)
	if err := fs.Parse([]string{"-v"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ResolveVerbosity(fs, &cfg)
	if cfg.Verbosity != 1 {
		t.Fatalf("Verbosity = %d, want 1", cfg.Verbosity)
	}
}

func TestResolveVerbosityGatesImplyForwarding(t *testing.T) {
	var cfg Config
	fs := NewFlagSet("waps", &cfg)
	if err := fs.Parse([]string{"-g"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ResolveVerbosity(fs, &cfg)
	if !cfg.EnableForward {
		t.Fatal("-g should imply waveform forwarding")
	}
}

func TestResolveVerbosityVarianceFlagEnablesVarianceMode(t *testing.T) {
	var cfg Config
	fs := NewFlagSet("waps", &cfg)
	if err := fs.Parse([]string{"-E", "2.5"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ResolveVerbosity(fs, &cfg)
	if !cfg.VarianceMode || cfg.VarianceMultiplier != 2.5 {
		t.Fatalf("variance mode = %v (%v), want enabled at 2.5", cfg.VarianceMode, cfg.VarianceMultiplier)
	}
}
