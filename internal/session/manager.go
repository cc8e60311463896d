// Package session coordinates one node's lifecycle: discovery, the TCP
// listener and the background receive loop, behind bounded waits only.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/trueLoving/Stationuli/internal/discovery"
	serrors "github.com/trueLoving/Stationuli/internal/errors"
	"github.com/trueLoving/Stationuli/internal/events"
	"github.com/trueLoving/Stationuli/internal/models"
	"github.com/trueLoving/Stationuli/internal/transfer"
	"github.com/trueLoving/Stationuli/internal/transport"
)

type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// service is what one successful Start installed.
type service struct {
	ln   *transport.Listener
	port uint16
	done chan struct{}
}

type Manager struct {
	saveDir    string
	deviceType models.DeviceType
	deviceName string
	identity   discovery.Identity
	t          Timeouts
	sink       events.Sink

	discOpts     []discovery.Option
	senderOpts   []transfer.SenderOption
	receiverOpts []transfer.ReceiverOption
	sender       *transfer.Sender
	receiver     *transfer.Receiver

	// lifecycle serializes Start and Stop
	lifecycle chan struct{}
	state     atomic.Int32

	// slotMu guards listener, the slot the receive loop watches
	slotMu   sync.RWMutex
	listener *transport.Listener

	svcMu sync.Mutex
	svc   *service

	discMu sync.Mutex
	disc   *discovery.Discoverier
}

// New creates a stopped manager that saves received files under saveDir.
func New(saveDir string, opts ...Option) *Manager {
	m := &Manager{
		saveDir:    saveDir,
		deviceType: models.DeviceDesktop,
		t:          DefaultTimeouts(),
		sink:       events.Discard{},
		lifecycle:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.identity = discovery.NewIdentity(m.deviceType)
	if m.deviceName != "" {
		m.identity.Name = m.deviceName
	}
	m.sender = transfer.NewSender(m.senderOpts...)
	m.receiver = transfer.NewReceiver(m.receiverOpts...)

	return m
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// Port returns the bound listener port, or 0 when not running.
func (m *Manager) Port() uint16 {
	m.svcMu.Lock()
	defer m.svcMu.Unlock()
	if m.svc == nil {
		return 0
	}
	return m.svc.port
}

func (m *Manager) SaveDir() string {
	return m.saveDir
}

func (m *Manager) DeviceID() string {
	return m.identity.ID
}

func (m *Manager) Identity() discovery.Identity {
	return m.identity
}

func (m *Manager) LocalIP() string {
	m.discMu.Lock()
	d := m.disc
	m.discMu.Unlock()

	if d != nil {
		return d.LocalIP()
	}
	return discovery.LocalIP()
}

// registry returns the current discovery instance, creating an idle one so
// that devices can be managed before Start.
func (m *Manager) registry() (*discovery.Discoverier, error) {
	m.discMu.Lock()
	defer m.discMu.Unlock()

	if m.disc == nil {
		d, err := discovery.NewDiscoverier(m.identity, m.discOpts...)
		if err != nil {
			return nil, err
		}
		m.disc = d
	}
	return m.disc, nil
}

func (m *Manager) Devices() []models.DeviceInfo {
	d, err := m.registry()
	if err != nil {
		slog.Warn("Device registry unavailable", "error", err)
		return []models.DeviceInfo{}
	}
	return d.Devices()
}

func (m *Manager) Device(id string) (models.DeviceInfo, error) {
	d, err := m.registry()
	if err != nil {
		return models.DeviceInfo{}, err
	}
	return d.Device(id)
}

func (m *Manager) AddDevice(info models.DeviceInfo) error {
	d, err := m.registry()
	if err != nil {
		return err
	}
	d.AddDevice(info)
	return nil
}

func (m *Manager) RemoveDevice(id string) error {
	d, err := m.registry()
	if err != nil {
		return err
	}
	return d.RemoveDevice(id)
}

func (m *Manager) UpdateDevice(info models.DeviceInfo) error {
	d, err := m.registry()
	if err != nil {
		return err
	}
	return d.UpdateDevice(info)
}

// SendFile sends the file at path to address:port. Progress goes to the
// notification sink and, when non-nil, to progress as well.
func (m *Manager) SendFile(ctx context.Context, path, address string, port uint16, progress transfer.ProgressFunc) error {
	id := uuid.NewString()
	name := filepath.Base(path)

	notify := func(sent, total uint64) {
		pct := 100.0
		if total > 0 {
			pct = float64(sent) / float64(total) * 100
		}
		m.sink.Emit(events.TransferProgress, events.ProgressPayload{
			TransferID: id,
			File:       name,
			Progress:   pct,
			Sent:       sent,
			Total:      total,
		})
		if progress != nil {
			progress(sent, total)
		}
	}

	err := m.sender.SendFile(ctx, path, address, port, notify)
	if err != nil {
		slog.Error("Fail to send file", "file", path, "address", address, "port", port, "error", err)
		m.sink.Emit(events.TransferError, events.ErrorPayload{TransferID: id, File: name, Error: err.Error()})
		return err
	}

	m.sink.Emit(events.TransferComplete, events.CompletePayload{
		TransferID: id,
		File:       name,
		Address:    address,
		Port:       port,
	})
	return nil
}

// TestConnection checks that address:port accepts TCP connections.
func (m *Manager) TestConnection(ctx context.Context, address string, port uint16) error {
	ctx, cancel := context.WithTimeout(ctx, m.t.TestConnect)
	defer cancel()

	conn, err := transport.Connect(ctx, address, port)
	if err != nil {
		return err
	}
	return conn.Close()
}

// saveTarget forces directory semantics for the receiver.
func (m *Manager) saveTarget() string {
	dir := m.saveDir
	if dir == "" {
		dir = "."
	}
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return dir
}

func (m *Manager) acquireLifecycle() error {
	select {
	case m.lifecycle <- struct{}{}:
		return nil
	case <-time.After(m.t.Stop):
		return fmt.Errorf("acquire lifecycle: %w", serrors.ErrBusy)
	}
}

func (m *Manager) releaseLifecycle() {
	<-m.lifecycle
}

// within polls try until it succeeds or d elapses.
func within(try func() bool, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if try() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(lockPoll)
	}
}

const lockPoll = 5 * time.Millisecond
