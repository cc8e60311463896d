package session

import (
	"errors"
	"log/slog"
	"time"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
	"github.com/trueLoving/Stationuli/internal/events"
	"github.com/trueLoving/Stationuli/internal/transport"
)

// receiveLoop accepts one peer at a time on svc's listener until the slot no
// longer holds it. The read lock is held only around accept so that a
// running transfer never delays Stop.
func (m *Manager) receiveLoop(svc *service) {
	defer close(svc.done)

	slog.Info("Receive loop started", "port", svc.port)
	defer slog.Info("Receive loop exited", "port", svc.port)

	for {
		if !within(m.slotMu.TryRLock, m.t.SlotRead) {
			time.Sleep(m.t.IdlePoll)
			continue
		}

		ln := m.listener
		if ln == nil || ln != svc.ln || ln.Retired() {
			m.slotMu.RUnlock()
			return
		}

		conn, err := ln.AcceptTimeout(m.t.Accept)
		m.slotMu.RUnlock()

		if err != nil {
			if errors.Is(err, serrors.ErrAcceptTimeout) {
				// gives a waiting writer its window on the slot
				time.Sleep(m.t.IdlePoll)
				continue
			}
			if serrors.IsClosed(err) || svc.ln.Retired() {
				return
			}
			slog.Warn("Accept failed", "error", err)
			time.Sleep(m.t.ErrorPause)
			continue
		}

		m.serve(conn)
	}
}

func (m *Manager) serve(conn *transport.Conn) {
	remote := conn.RemoteAddr().String()

	rec, err := m.receiver.Receive(conn, m.saveTarget())
	if err != nil {
		slog.Warn("Fail to receive file", "remote", remote, "error", err)
		m.sink.Emit(events.TransferError, events.ErrorPayload{Error: err.Error()})
		time.Sleep(m.t.ErrorPause)
		return
	}

	slog.Info("File received", "path", rec.Path, "remote", remote)
	m.sink.Emit(events.FileReceived, events.FileReceivedPayload{
		Path:   rec.Path,
		Name:   rec.Name,
		Size:   rec.Size,
		Remote: remote,
	})
}
