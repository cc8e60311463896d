package session

import (
	"log/slog"
	"time"

	"github.com/trueLoving/Stationuli/internal/discovery"
	serrors "github.com/trueLoving/Stationuli/internal/errors"
	"github.com/trueLoving/Stationuli/internal/transport"
)

// Start tears down any previous session, then binds port, brings up
// discovery announcing the bound port and spawns the receive loop. Port 0
// binds an ephemeral port. Either both discovery and the listener are
// installed on return, or neither is.
func (m *Manager) Start(port uint16) error {
	if err := m.acquireLifecycle(); err != nil {
		return err
	}
	defer m.releaseLifecycle()

	if svc, disc := m.current(); svc != nil || disc != nil {
		m.teardownWithin(svc, disc, m.t.Stop)
	}
	m.setState(Starting)

	m.clearSlot(nil)
	time.Sleep(m.t.Settle)

	ln, err := m.bind(port)
	if err != nil {
		m.setState(Stopped)
		return err
	}

	disc, err := m.freshDiscovery()
	if err != nil {
		ln.Close()
		m.setState(Stopped)
		return err
	}
	if err := disc.Start(ln.Port()); err != nil {
		ln.Close()
		m.setState(Stopped)
		return err
	}

	if !within(m.slotMu.TryLock, m.t.SlotWrite) {
		ln.Close()
		m.stopDiscovery(disc)
		m.setState(Stopped)
		return serrors.Network("install listener", serrors.ErrBusy, "listener slot")
	}
	m.listener = ln
	m.slotMu.Unlock()

	svc := &service{ln: ln, port: ln.Port(), done: make(chan struct{})}
	m.svcMu.Lock()
	m.svc = svc
	m.svcMu.Unlock()

	go m.receiveLoop(svc)

	m.setState(Running)
	slog.Info("Service started", "id", m.identity.ID, "port", svc.port, "saveDir", m.saveDir)
	return nil
}

// Stop shuts discovery and the listener down. Without a running session it
// is a successful no-op. The receive loop is not joined; it exits on its
// next look at the listener slot.
func (m *Manager) Stop() error {
	if err := m.acquireLifecycle(); err != nil {
		return err
	}
	defer m.releaseLifecycle()

	svc, disc := m.current()
	if svc == nil && disc == nil {
		m.setState(Stopped)
		return nil
	}

	m.teardown(svc, disc)
	time.Sleep(m.t.Settle)
	m.setState(Stopped)

	slog.Info("Service stopped", "id", m.identity.ID)
	return nil
}

// current returns the installed service and the discovery instance if it is
// running.
func (m *Manager) current() (*service, *discovery.Discoverier) {
	m.svcMu.Lock()
	svc := m.svc
	m.svcMu.Unlock()

	m.discMu.Lock()
	disc := m.disc
	m.discMu.Unlock()

	if disc != nil && !disc.Running() {
		disc = nil
	}
	return svc, disc
}

func (m *Manager) teardown(svc *service, disc *discovery.Discoverier) {
	m.setState(Stopping)

	if disc != nil {
		m.stopDiscovery(disc)
	}
	if svc != nil {
		m.clearSlot(svc.ln)
	}

	m.svcMu.Lock()
	if m.svc == svc {
		m.svc = nil
	}
	m.svcMu.Unlock()
}

// teardownWithin runs teardown but gives up after d, dropping the stale
// handles so Start can go on.
func (m *Manager) teardownWithin(svc *service, disc *discovery.Discoverier, d time.Duration) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.teardown(svc, disc)
	}()

	select {
	case <-done:
	case <-time.After(d):
		slog.Warn("Previous session teardown timed out, discarding it", "timeout", d)
		if svc != nil {
			svc.ln.Retire()
		}
		m.svcMu.Lock()
		if m.svc == svc {
			m.svc = nil
		}
		m.svcMu.Unlock()
		m.dropDiscovery(disc)
	}
}

// stopDiscovery stops d within the discovery timeout. A stop that does not
// finish in time leaves d behind and a new instance is used next time.
func (m *Manager) stopDiscovery(d *discovery.Discoverier) {
	done := make(chan error, 1)
	go func() {
		done <- d.Stop()
	}()

	select {
	case err := <-done:
		if err != nil {
			slog.Warn("Fail to stop discovery", "error", err)
			m.dropDiscovery(d)
		}
	case <-time.After(m.t.DiscoveryStop):
		slog.Warn("Discovery stop timed out", "timeout", m.t.DiscoveryStop)
		m.dropDiscovery(d)
	}
}

func (m *Manager) dropDiscovery(d *discovery.Discoverier) {
	m.discMu.Lock()
	defer m.discMu.Unlock()
	if d != nil && m.disc == d {
		m.disc = nil
	}
}

// freshDiscovery reuses an idle registry, keeping devices added before the
// first Start, and otherwise creates a new instance.
func (m *Manager) freshDiscovery() (*discovery.Discoverier, error) {
	m.discMu.Lock()
	defer m.discMu.Unlock()

	if m.disc != nil && !m.disc.Running() {
		return m.disc, nil
	}

	d, err := discovery.NewDiscoverier(m.identity, m.discOpts...)
	if err != nil {
		return nil, err
	}
	m.disc = d
	return d, nil
}

// clearSlot empties the listener slot and closes what it held. When expect
// is set, only that listener is removed. If the slot cannot be locked in
// time, expect is retired without the lock.
func (m *Manager) clearSlot(expect *transport.Listener) {
	if within(m.slotMu.TryLock, m.t.SlotWrite) {
		cur := m.listener
		if expect == nil || cur == expect {
			m.listener = nil
		}
		m.slotMu.Unlock()

		if expect == nil {
			expect = cur
		}
	} else {
		slog.Warn("Listener slot busy, retiring listener", "timeout", m.t.SlotWrite)
	}

	if expect != nil {
		expect.Retire()
	}
}

// bind listens on port, retrying once after a forced cleanup when the port
// is still held.
func (m *Manager) bind(port uint16) (*transport.Listener, error) {
	ln, err := transport.Listen(port)
	if err == nil {
		return ln, nil
	}
	if !serrors.IsAddrInUse(err) {
		return nil, err
	}

	slog.Warn("Port in use, retrying after cleanup", "port", port, "error", err)
	m.clearSlot(nil)
	time.Sleep(m.t.ForcedRetry)

	return transport.Listen(port)
}
