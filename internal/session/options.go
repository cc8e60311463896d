package session

import (
	"time"

	"github.com/trueLoving/Stationuli/internal/discovery"
	"github.com/trueLoving/Stationuli/internal/events"
	"github.com/trueLoving/Stationuli/internal/models"
	"github.com/trueLoving/Stationuli/internal/transfer"
)

// Timeouts bounds every wait the manager performs.
type Timeouts struct {
	Stop          time.Duration // previous session teardown ceiling
	DiscoveryStop time.Duration
	SlotWrite     time.Duration // exclusive access to the listener slot
	ForcedRetry   time.Duration // pause before the single rebind attempt
	Accept        time.Duration
	SlotRead      time.Duration // receive loop access to the listener slot
	Settle        time.Duration
	ErrorPause    time.Duration
	IdlePoll      time.Duration
	TestConnect   time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Stop:          60 * time.Second,
		DiscoveryStop: 5 * time.Second,
		SlotWrite:     5 * time.Second,
		ForcedRetry:   time.Second,
		Accept:        time.Second,
		SlotRead:      100 * time.Millisecond,
		Settle:        500 * time.Millisecond,
		ErrorPause:    100 * time.Millisecond,
		IdlePoll:      50 * time.Millisecond,
		TestConnect:   5 * time.Second,
	}
}

type Option func(*Manager)

// WithTimeouts replaces the non-zero fields of the default timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(m *Manager) {
		set := func(dst *time.Duration, v time.Duration) {
			if v > 0 {
				*dst = v
			}
		}
		set(&m.t.Stop, t.Stop)
		set(&m.t.DiscoveryStop, t.DiscoveryStop)
		set(&m.t.SlotWrite, t.SlotWrite)
		set(&m.t.ForcedRetry, t.ForcedRetry)
		set(&m.t.Accept, t.Accept)
		set(&m.t.SlotRead, t.SlotRead)
		set(&m.t.Settle, t.Settle)
		set(&m.t.ErrorPause, t.ErrorPause)
		set(&m.t.IdlePoll, t.IdlePoll)
		set(&m.t.TestConnect, t.TestConnect)
	}
}

func WithSink(sink events.Sink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.sink = sink
		}
	}
}

func WithDeviceType(typ models.DeviceType) Option {
	return func(m *Manager) {
		m.deviceType = typ
	}
}

// WithDeviceName overrides the host name announced to peers.
func WithDeviceName(name string) Option {
	return func(m *Manager) {
		m.deviceName = name
	}
}

func WithDiscoveryOptions(opts ...discovery.Option) Option {
	return func(m *Manager) {
		m.discOpts = append(m.discOpts, opts...)
	}
}

func WithSenderOptions(opts ...transfer.SenderOption) Option {
	return func(m *Manager) {
		m.senderOpts = append(m.senderOpts, opts...)
	}
}

func WithReceiverOptions(opts ...transfer.ReceiverOption) Option {
	return func(m *Manager) {
		m.receiverOpts = append(m.receiverOpts, opts...)
	}
}
