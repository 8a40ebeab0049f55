package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"

	"github.com/ec-jrc/abcd-waveforms/internal/channel"
	"github.com/ec-jrc/abcd-waveforms/internal/frame"
	"github.com/ec-jrc/abcd-waveforms/internal/fsm"
	"github.com/ec-jrc/abcd-waveforms/internal/plugin"
	"github.com/ec-jrc/abcd-waveforms/internal/telemetry"
	"github.com/ec-jrc/abcd-waveforms/internal/transform"
)

// State ids, per the 1xx/2xx/.../9xx numbering convention.
const (
	idStart           uint32 = 100
	idCreateContext   uint32 = 101
	idCreateSockets   uint32 = 102
	idBindSockets     uint32 = 103
	idReadConfig      uint32 = 104
	idApplyConfig     uint32 = 105
	idPublishStatus   uint32 = 200
	idReceiveCommands uint32 = 201
	idReadSocket      uint32 = 204

	idClearMemory   uint32 = 801
	idCloseSockets  uint32 = 802
	idDestroyContext uint32 = 803

	idTransportError uint32 = 901
	idParseError     uint32 = 902
	idDataError      uint32 = 903
	idConfigureError uint32 = 904
	idPluginError    uint32 = 905
)

// topics builds the two module-specific topic strings,
// `status_<module>` and `events_<module>`. The `data_abcd_*_v0_s<N>`
// data topics come from frame.TopicFor instead.
type topics struct{ module string }

func (t topics) status() string { return "status_" + t.module }
func (t topics) events() string { return "events_" + t.module }

// States builds the full state table shared by both the waps and waph
// binaries; Status.Kind is the only thing that makes ReadSocket's
// dispatch differ between them. module names the process for topic
// strings and status JSON's "module" field. onTerminate is the state
// fsm.Run should force next whenever the terminate flag fires — the
// same ClearMemory entry point the error states already funnel into.
func States(module string) (start fsm.State[*Status], onTerminate func() fsm.State[*Status]) {
	tp := topics{module: module}

	var (
		createContext   fsm.State[*Status]
		createSockets   fsm.State[*Status]
		bindSockets     fsm.State[*Status]
		readConfig      fsm.State[*Status]
		applyConfig     fsm.State[*Status]
		publishStatus   fsm.State[*Status]
		receiveCommands fsm.State[*Status]
		readSocket      fsm.State[*Status]
		clearMemory     fsm.State[*Status]
		closeSockets    fsm.State[*Status]
		destroyContext  fsm.State[*Status]
		stop            fsm.State[*Status]

		transportError fsm.State[*Status]
		parseError     fsm.State[*Status]
		dataError      fsm.State[*Status]
		configureError fsm.State[*Status]
		pluginError    fsm.State[*Status]
	)

	stop = fsm.State[*Status]{ID: fsm.IDStop, Description: "Stop"}

	destroyContext = fsm.State[*Status]{ID: idDestroyContext, Description: "DestroyContext", Action: func(s *Status) fsm.State[*Status] {
		return stop
	}}

	closeSockets = fsm.State[*Status]{ID: idCloseSockets, Description: "CloseSockets", Action: func(s *Status) fsm.State[*Status] {
		s.Sockets.Close()
		return destroyContext
	}}

	clearMemory = fsm.State[*Status]{ID: idClearMemory, Description: "ClearMemory", Action: func(s *Status) fsm.State[*Status] {
		if s.Selector != nil {
			// select_close failures are logged-and-continued, never
			// fatal, per the propagation policy.
			if err := s.Selector.Close(); err != nil {
				s.Logger.Printf("plugin select_close: %v", err)
			}
		}
		return closeSockets
	}}

	// publishEventError is shared by every error state: it publishes
	// {"type":"error","error":"<tag>"} plus diagnostic text on the
	// events channel, exactly the shape spec.md's §6 names for
	// user-visible failures.
	publishEventError := func(s *Status) {
		s.Counters.ErrCount++
		payload, err := json.Marshal(struct {
			Type    string `json:"type"`
			Error   string `json:"error"`
			Message string `json:"message"`
		}{Type: "error", Error: string(TagOf(s.LastErr)), Message: s.LastErr.Error()})
		if err != nil {
			return
		}
		if s.Sockets.Events != nil {
			s.Sockets.PublishEvents(tp.events(), payload)
		}
	}

	transportError = fsm.State[*Status]{ID: idTransportError, Description: "TransportError", Action: func(s *Status) fsm.State[*Status] {
		publishEventError(s)
		return clearMemory
	}}

	parseError = fsm.State[*Status]{ID: idParseError, Description: "ParseError", Action: func(s *Status) fsm.State[*Status] {
		publishEventError(s)
		return publishStatus
	}}

	dataError = fsm.State[*Status]{ID: idDataError, Description: "DataError", Action: func(s *Status) fsm.State[*Status] {
		publishEventError(s)
		return publishStatus
	}}

	pluginError = fsm.State[*Status]{ID: idPluginError, Description: "PluginError", Action: func(s *Status) fsm.State[*Status] {
		publishEventError(s)
		return clearMemory
	}}

	// configureError is reached two ways: from ApplyConfig during
	// startup (fatal — no channel table has ever been installed, so
	// there is nothing to keep running with) and from ReceiveCommands
	// during a live reconfigure (non-fatal — the previous Table/viper
	// config stay active and the worker keeps running). The two paths
	// are told apart by whether a channel table is already installed.
	configureError = fsm.State[*Status]{ID: idConfigureError, Description: "ConfigureError", Action: func(s *Status) fsm.State[*Status] {
		publishEventError(s)
		s.LastConfigureFailed = true
		if s.Channels() == nil {
			return clearMemory
		}
		return publishStatus
	}}

	start = fsm.State[*Status]{ID: idStart, Description: "Start", Action: func(s *Status) fsm.State[*Status] {
		return createContext
	}}

	createContext = fsm.State[*Status]{ID: idCreateContext, Description: "CreateContext", Action: func(s *Status) fsm.State[*Status] {
		selector, err := plugin.Load(s.Cfg.PluginPath)
		if err != nil {
			s.LastErr = Wrap(TagPlugin, err)
			return pluginError
		}
		s.Selector = selector
		return createSockets
	}}

	createSockets = fsm.State[*Status]{ID: idCreateSockets, Description: "CreateSockets", Action: func(s *Status) fsm.State[*Status] {
		sockets, err := Create(s.Cfg)
		if err != nil {
			s.LastErr = Wrap(TagTransport, err)
			return transportError
		}
		s.Sockets = sockets
		return bindSockets
	}}

	// bindSockets is a no-op tick: Create already binds/connects every
	// channeler eagerly (czmq has no separate bind step for a
	// channeler-wrapped socket), but the state is kept as its own node
	// so the chain matches the one spec.md names.
	bindSockets = fsm.State[*Status]{ID: idBindSockets, Description: "BindSockets", Action: func(s *Status) fsm.State[*Status] {
		return readConfig
	}}

	readConfig = fsm.State[*Status]{ID: idReadConfig, Description: "ReadConfig", Action: func(s *Status) fsm.State[*Status] {
		v, err := LoadViper(s.Cfg.ConfigPath)
		if err != nil {
			s.LastErr = Wrap(TagParse, err)
			return parseError
		}
		s.SetViperConfig(v)
		return applyConfig
	}}

	applyConfig = fsm.State[*Status]{ID: idApplyConfig, Description: "ApplyConfig", Action: func(s *Status) fsm.State[*Status] {
		table, err := channel.BuildFromConfig(s.ViperConfig())
		if err != nil {
			s.LastErr = Wrap(TagConfigure, err)
			return configureError
		}
		s.SetChannels(table)
		s.LastConfigureFailed = false
		telemetry.Dump(s.Logger, s.Cfg.Verbosity, "ApplyConfig", table)
		return publishStatus
	}}

	publishStatus = fsm.State[*Status]{ID: idPublishStatus, Description: "PublishStatus", Action: func(s *Status) fsm.State[*Status] {
		s.Counters.MsgID++
		s.LastPublish = time.Now()
		hb := s.Heartbeat.Take(true, s.Counters.EventsEmitted, s.Counters.WaveformsForwarded, s.Counters.WarnCount, s.Counters.ErrCount)
		echoedConfig, err := json.Marshal(s.ViperConfig().AllSettings())
		if err != nil {
			echoedConfig = []byte("{}")
		}
		payload, err := json.Marshal(statusJSON{
			Module:          module,
			Timestamp:       s.LastPublish.UTC().Format(time.RFC3339),
			MsgID:           s.Counters.MsgID,
			Config:          echoedConfig,
			Heartbeat:       hb,
			ConfigureFailed: s.LastConfigureFailed,
		})
		if err == nil && s.Sockets.Status != nil {
			s.Sockets.PublishStatus(tp.status(), payload)
		}
		return receiveCommands
	}}

	receiveCommands = fsm.State[*Status]{ID: idReceiveCommands, Description: "ReceiveCommands", Action: func(s *Status) fsm.State[*Status] {
		payload, ok := s.Sockets.ReceiveCommand()
		if !ok {
			return readSocket
		}
		cmd, err := ParseCommand(payload)
		if err != nil {
			s.LastErr = Wrap(TagParse, err)
			return parseError
		}
		telemetry.Dump(s.Logger, s.Cfg.Verbosity, "ReceiveCommands", cmd)
		if cmd.IsQuit() {
			return clearMemory
		}
		nv, err := applyReconfigure(cmd)
		if err != nil {
			s.LastErr = Wrap(TagConfigure, err)
			return configureError
		}
		s.SetViperConfig(nv.viper)
		s.SetChannels(nv.table)
		s.LastConfigureFailed = false
		return readSocket
	}}

	readSocket = fsm.State[*Status]{ID: idReadSocket, Description: "ReadSocket", Action: func(s *Status) fsm.State[*Status] {
		payload, ok := s.Sockets.ReceiveWaveforms()
		if !ok {
			return publishStatus
		}

		scratch := s.Scratch
		cfg := s.TransformConfig()
		stats := &transform.Stats{}
		warner := func(format string, args ...interface{}) {
			s.Counters.WarnCount++
			if s.Cfg.Verbosity > 0 {
				log.Printf(format, args...)
			}
		}

		var events, waveforms []byte
		if s.Kind == KindPulseHeight {
			events, waveforms = transform.RunPulseHeight(payload, s.Channels(), s.Selector, cfg, scratch, stats, warner)
		} else {
			events, waveforms = transform.RunPSD(payload, s.Channels(), s.Selector, cfg, scratch, stats, warner)
		}

		s.Counters.EventsEmitted += uint64(stats.EventsEmitted)
		s.Counters.WaveformsForwarded += uint64(stats.WaveformsForwarded)

		if len(events) > 0 && s.Sockets.Events != nil {
			s.Sockets.PublishEvents(frame.TopicFor(frame.KindEvents, len(events)), events)
		}
		if len(waveforms) > 0 && s.Sockets.Events != nil {
			s.Sockets.PublishEvents(frame.TopicFor(frame.KindWaveforms, len(waveforms)), waveforms)
		}
		if stats.Warnings > 0 {
			s.LastErr = Wrap(TagData, fmt.Errorf("dropped %d waveform(s): unknown channel or out-of-range gate window", stats.Warnings))
			return dataError
		}
		return publishStatus
	}}

	return start, func() fsm.State[*Status] { return clearMemory }
}

// reconfigureResult bundles the new viper source and the channel table
// derived from it, so a successful ReceiveCommands reconfigure swaps
// both atomically-owned values together.
type reconfigureResult struct {
	viper *viper.Viper
	table *channel.Table
}

// applyReconfigure parses a reconfigure command's embedded config
// object as a standalone JSON document and validates it into a Table,
// without touching the worker's currently-active config or table —
// the caller only swaps them in on success, which is what makes a
// rejected reconfigure leave the worker running on its old
// configuration.
func applyReconfigure(cmd Command) (reconfigureResult, error) {
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(cmd.Arguments.Config)); err != nil {
		return reconfigureResult{}, fmt.Errorf("parsing reconfigure config: %w", err)
	}
	table, err := channel.BuildFromConfig(v)
	if err != nil {
		return reconfigureResult{}, err
	}
	return reconfigureResult{viper: v, table: table}, nil
}

// statusJSON is the minimal status-channel payload; worker-specific
// metrics are flattened in rather than nested, matching the "at
// minimum" shape spec.md describes.
type statusJSON struct {
	Module          string              `json:"module"`
	Timestamp       string              `json:"timestamp"`
	MsgID           uint64              `json:"msg_ID"`
	Config          json.RawMessage     `json:"config"`
	Heartbeat       telemetry.Heartbeat `json:"heartbeat"`
	ConfigureFailed bool                `json:"configure_failed"`
}
