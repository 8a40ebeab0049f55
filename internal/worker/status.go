package worker

import (
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"

	"github.com/ec-jrc/abcd-waveforms/internal/channel"
	"github.com/ec-jrc/abcd-waveforms/internal/plugin"
	"github.com/ec-jrc/abcd-waveforms/internal/telemetry"
	"github.com/ec-jrc/abcd-waveforms/internal/transform"
)

// Kind selects which DSP chain ReadSocket dispatches to, the one
// difference between a `waps` and a `waph` worker's state table.
type Kind int

const (
	KindPSD Kind = iota
	KindPulseHeight
)

func (k Kind) String() string {
	if k == KindPulseHeight {
		return "waph"
	}
	return "waps"
}

// Counters are the status-channel-visible metrics, incremented as the
// steady-state loop runs.
type Counters struct {
	MsgID              uint64
	WarnCount          uint64
	ErrCount           uint64
	EventsEmitted      uint64
	WaveformsForwarded uint64
}

// Status is the single mutable context threaded through every state
// action, grounded on the teacher's own atomically-swapped
// ServerStatus/SourceControl pattern in rpc_server.go, generalized
// here to hold every resource a transformer worker owns for its
// lifetime.
type Status struct {
	Kind Kind
	Cfg  Config

	Sockets Sockets

	channels atomic.Pointer[channel.Table]
	Selector *plugin.Selector

	viperConfig atomic.Pointer[viper.Viper]

	Counters Counters
	Scratch  transform.ScratchPool

	Heartbeat *telemetry.Accumulator
	Logger    *log.Logger

	LastPublish time.Time
	LastErr     error

	// LastConfigureFailed records whether the most recent configure
	// attempt was rejected. PublishStatus reports it in every status
	// message until a later configure succeeds; the error event itself
	// is published once, by the ConfigureError state.
	LastConfigureFailed bool
}

// NewStatus builds a Status with its scratch pool and heartbeat clock
// ready; sockets, channel table and plug-in are attached by the state
// chain.
func NewStatus(kind Kind, cfg Config) *Status {
	return &Status{
		Kind:      kind,
		Cfg:       cfg,
		Scratch:   transform.ScratchPool{},
		Heartbeat: telemetry.NewAccumulator(),
		Logger:    log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Channels atomically loads the active channel table.
func (s *Status) Channels() *channel.Table {
	return s.channels.Load()
}

// SetChannels atomically swaps in a new channel table; the old one is
// simply dropped by the garbage collector once no state action still
// holds a reference, which is how this implementation resolves the
// "release configuration exactly once" open question.
func (s *Status) SetChannels(t *channel.Table) {
	s.channels.Store(t)
}

// ViperConfig atomically loads the current configuration source.
func (s *Status) ViperConfig() *viper.Viper {
	return s.viperConfig.Load()
}

// SetViperConfig atomically swaps in a new configuration source.
func (s *Status) SetViperConfig(v *viper.Viper) {
	s.viperConfig.Store(v)
}

// TransformConfig derives the transform.Config the hot path needs from
// the CLI configuration.
func (s *Status) TransformConfig() transform.Config {
	return transform.Config{
		DisableShift:       s.Cfg.DisableShift,
		FractionalBits:     16,
		EnableForward:      s.Cfg.EnableForward,
		EnableGates:        s.Cfg.EnableGates,
		VarianceMode:       s.Cfg.VarianceMode,
		VarianceMultiplier: s.Cfg.VarianceMultiplier,
	}
}
