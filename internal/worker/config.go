// Package worker wires the transform chains to a live process: CLI
// flags, the JSON configuration file, the three socket roles, and the
// state table both transformer binaries share.
package worker

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default loopback addresses, mirroring the teacher's own
// tcp://*:<fixed-port> convention for its pub channelers.
const (
	DefaultSubscribeAddress = "tcp://127.0.0.1:7001"
	DefaultPublishAddress   = "tcp://*:7002"
	DefaultStatusAddress    = "tcp://*:7003"
	DefaultCommandsAddress  = "tcp://127.0.0.1:7004"
	DefaultBasePeriodMS     = 100
)

// Config is the CLI-derived process configuration, bound via pflag.
// The flags are not bound to viper: top-level scalars in the JSON
// configuration file do not override these values.
type Config struct {
	SubscribeAddress string
	PublishAddress   string
	StatusAddress    string
	CommandsAddress  string

	BasePeriodMS int

	EnableForward bool
	EnableGates   bool
	DisableShift  bool

	PluginPath string

	VarianceMode       bool
	VarianceMultiplier float64

	Verbosity int // 0 quiet, 1 (-v), 2 (-V)

	ConfigPath string
}

// NewFlagSet defines every flag spec.md's CLI surface names, binding
// into cfg. The positional configuration-file path is read separately
// by the caller via fs.Arg(0) after Parse.
func NewFlagSet(name string, cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVarP(&cfg.SubscribeAddress, "subscribe", "S", DefaultSubscribeAddress, "waveform input subscribe address")
	fs.StringVarP(&cfg.PublishAddress, "publish", "P", DefaultPublishAddress, "event output publish address")
	fs.IntVarP(&cfg.BasePeriodMS, "period", "T", DefaultBasePeriodMS, "base period in milliseconds")
	fs.BoolVarP(&cfg.EnableForward, "forward", "w", false, "enable waveform forwarding")
	fs.BoolVarP(&cfg.EnableGates, "gates", "g", false, "enable synthetic diagnostic gates on forwarded waveforms")
	fs.BoolVarP(&cfg.DisableShift, "no-shift", "b", false, "disable the fractional-tick timestamp left-shift")
	fs.StringVarP(&cfg.PluginPath, "plugin", "l", "", "path to a selection plug-in shared library")
	fs.Float64VarP(&cfg.VarianceMultiplier, "variance", "E", 0, "enable variance mode with the given multiplier")
	fs.BoolP("verbose", "v", false, "verbosity level 1")
	fs.BoolP("very-verbose", "V", false, "verbosity level 2")
	fs.StringVar(&cfg.StatusAddress, "status-address", DefaultStatusAddress, "status heartbeat publish address")
	fs.StringVar(&cfg.CommandsAddress, "commands-address", DefaultCommandsAddress, "commands pull address")
	return fs
}

// ResolveVerbosity must be called after fs.Parse: -V (very-verbose)
// takes precedence over -v.
func ResolveVerbosity(fs *pflag.FlagSet, cfg *Config) {
	v, _ := fs.GetBool("verbose")
	vv, _ := fs.GetBool("very-verbose")
	switch {
	case vv:
		cfg.Verbosity = 2
	case v:
		cfg.Verbosity = 1
	default:
		cfg.Verbosity = 0
	}
	cfg.EnableForward = cfg.EnableForward || cfg.EnableGates // -g implies forwarding
	if m, _ := fs.GetFloat64("variance"); m != 0 {
		cfg.VarianceMode = true
		cfg.VarianceMultiplier = m
	}
}

// LoadViper reads the JSON configuration at cfg.ConfigPath into a
// fresh *viper.Viper, following the teacher's single-config-file
// pattern (data_source.go/rpc_server.go read one shared viper.Viper
// rather than per-component files).
func LoadViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("worker: reading config %s: %w", configPath, err)
	}
	return v, nil
}
