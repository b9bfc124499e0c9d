package api

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/game/run"
)

const (
	// feedBuffer is the number of snapshots queued per subscriber before drops.
	feedBuffer = 32
	writeWait  = 5 * time.Second
)

// feedMessage is a control sent by a feed client.
type feedMessage struct {
	Type      string `json:"type"`
	MemberID  string `json:"member_id"`
	AbilityID string `json:"ability_id"`
	PackID    string `json:"pack_id"`
}

// feedError is sent back for a rejected control.
type feedError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// apply forwards m to sig.
func (m feedMessage) apply(sig *run.ControlSignals) error {
	switch m.Type {
	case "pause":
		sig.Pause()
	case "resume":
		sig.Resume()
	case "stop":
		sig.Stop()
	case "resurrect":
		if m.MemberID == "" {
			return errBadControl("resurrect needs member_id")
		}
		sig.Resurrect(m.MemberID)
	case "ability":
		if m.MemberID == "" || m.AbilityID == "" {
			return errBadControl("ability needs member_id and ability_id")
		}
		sig.UseAbility(m.MemberID, m.AbilityID)
	case "engage":
		if m.PackID == "" {
			return errBadControl("engage needs pack_id")
		}
		sig.EngageOptional(m.PackID)
	default:
		return errBadControl("unknown control " + m.Type)
	}
	return nil
}

// feed upgrades to a websocket that pushes every snapshot of the run and
// accepts controls. The server closes the socket after the final snapshot.
func (s *Server) feed(c *gin.Context) {
	e, ok := s.entry(c)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("feed upgrade failed", zap.String("run_id", e.ID), zap.Error(err))
		return
	}
	defer conn.Close()
	logger := s.logger.With(zap.String("run_id", e.ID))

	snaps := make(chan run.Snapshot, feedBuffer)
	e.broadcaster.Subscribe(snaps)
	defer e.broadcaster.Unsubscribe(snaps)

	// The reader owns conn reads; errors travel back on replies.
	replies := make(chan feedError, 4)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg feedMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				logger.Debug("discarding malformed feed message", zap.Error(err))
				continue
			}
			var applyErr error
			if err := e.Control(func(sig *run.ControlSignals) { applyErr = msg.apply(sig) }); err != nil {
				applyErr = err
			}
			if applyErr != nil {
				select {
				case replies <- feedError{Type: "error", Error: applyErr.Error()}:
				default:
				}
			}
		}
	}()

	lastTick := -1
	sentFinal := false
	send := func(snap run.Snapshot) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(snap); err != nil {
			logger.Debug("feed write failed", zap.Error(err))
			return false
		}
		lastTick = snap.Tick
		sentFinal = sentFinal || snap.Result != nil
		return true
	}

	if snap, ok := e.Snapshot(); ok {
		if !send(snap) {
			return
		}
	}
	for {
		select {
		case snap := <-snaps:
			if snap.Tick < lastTick || sentFinal {
				continue
			}
			if !send(snap) {
				return
			}
		case reply := <-replies:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		case <-e.Done():
			// The final snapshot may have been dropped from a full buffer.
			if snap, ok := e.Snapshot(); ok && !sentFinal {
				if !send(snap) {
					return
				}
			}
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case <-closed:
			return
		}
	}
}
