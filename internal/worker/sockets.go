package worker

import (
	"fmt"

	czmq "github.com/zeromq/goczmq"
)

// Sockets holds the three socket roles every transformer worker owns,
// grounded on the teacher's own czmq.NewPubChanneler/SendChan idiom in
// publish_data.go, generalized to the sub and pull roles this spec's
// commands/data channels need.
type Sockets struct {
	Waveforms *czmq.Channeler // SUB: incoming waveform frames
	Events    *czmq.Channeler // PUB: outgoing event (and forwarded-waveform) frames
	Status    *czmq.Channeler // PUB: status/heartbeat JSON
	Commands  *czmq.Channeler // PULL: reconfigure/quit JSON commands
}

// Create opens all four channelers. A bind/connect failure on any one
// of them is a TransportError and is fatal at startup, per the error
// taxonomy.
func Create(cfg Config) (Sockets, error) {
	waveforms := czmq.NewSubChanneler(cfg.SubscribeAddress, "")
	if waveforms == nil {
		return Sockets{}, fmt.Errorf("worker: failed to create waveform subscriber on %s", cfg.SubscribeAddress)
	}
	events := czmq.NewPubChanneler(cfg.PublishAddress)
	if events == nil {
		waveforms.Destroy()
		return Sockets{}, fmt.Errorf("worker: failed to create event publisher on %s", cfg.PublishAddress)
	}
	status := czmq.NewPubChanneler(cfg.StatusAddress)
	if status == nil {
		waveforms.Destroy()
		events.Destroy()
		return Sockets{}, fmt.Errorf("worker: failed to create status publisher on %s", cfg.StatusAddress)
	}
	commands := czmq.NewPullChanneler(cfg.CommandsAddress)
	if commands == nil {
		waveforms.Destroy()
		events.Destroy()
		status.Destroy()
		return Sockets{}, fmt.Errorf("worker: failed to create commands puller on %s", cfg.CommandsAddress)
	}
	return Sockets{Waveforms: waveforms, Events: events, Status: status, Commands: commands}, nil
}

// Close destroys every non-nil channeler, tolerating a partially
// constructed Sockets value (e.g. torn down mid-startup-failure).
func (s Sockets) Close() {
	if s.Waveforms != nil {
		s.Waveforms.Destroy()
	}
	if s.Events != nil {
		s.Events.Destroy()
	}
	if s.Status != nil {
		s.Status.Destroy()
	}
	if s.Commands != nil {
		s.Commands.Destroy()
	}
}

// ReceiveWaveforms does a non-blocking poll for the next waveform
// message, matching the "socket receives are non-blocking" concurrency
// rule: a state with nothing to read returns to the idle next state
// immediately rather than parking the loop.
func (s Sockets) ReceiveWaveforms() ([]byte, bool) {
	select {
	case frames := <-s.Waveforms.RecvChan:
		return payloadFrame(frames), true
	default:
		return nil, false
	}
}

// ReceiveCommand does a non-blocking poll for the next commands-pull
// message.
func (s Sockets) ReceiveCommand() ([]byte, bool) {
	select {
	case frames := <-s.Commands.RecvChan:
		return payloadFrame(frames), true
	default:
		return nil, false
	}
}

// PublishEvents sends a two-frame [topic, payload] message on the
// event/waveform data channel.
func (s Sockets) PublishEvents(topic string, payload []byte) {
	s.Events.SendChan <- [][]byte{[]byte(topic), payload}
}

// PublishStatus sends a two-frame [topic, JSON payload] status message.
func (s Sockets) PublishStatus(topic string, payload []byte) {
	s.Status.SendChan <- [][]byte{[]byte(topic), payload}
}

// payloadFrame returns the payload frame of a received message,
// discarding the leading topic frame PublishEvents/PublishStatus
// prepend on the wire (a SUB/PULL receive delivers [topic, payload],
// and the topic frame is never part of the binary payload).
func payloadFrame(frames [][]byte) []byte {
	if len(frames) == 0 {
		return nil
	}
	return frames[len(frames)-1]
}
