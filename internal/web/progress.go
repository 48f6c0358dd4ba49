package web

import (
	"net/http"
	"time"

	"github.com/jroyseravila/heart/internal/common"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Progress stream message types
const (
	msgProgress = "progress"
	msgDone     = "done"
)

// progressMessage is one frame sent on /ws/predict.
type progressMessage struct {
	Type     string `json:"type"`
	Progress int    `json:"progress"`
}

// handleProgressStream paces the progress bar on the prediction page: ticks
// 0..100 at the configured delay, then a done frame. It never runs a
// prediction; the page submits its form once the stream is done, and that
// POST is the only inference for the press.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ProgressStreamsInc()
	}

	// Client frames are ignored. Reading keeps control frames flowing and
	// tells us when the page went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(common.MaxRequestBodyBytes)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for pct := 0; pct <= 100; pct++ {
		if err := s.send(conn, progressMessage{Type: msgProgress, Progress: pct}); err != nil {
			return
		}
		if s.cfg.ProgressDelay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-gone:
				log.Debug().Str("request_id", RequestID(r.Context())).Int("progress", pct).Msg("progress stream left early")
				return
			case <-time.After(s.cfg.ProgressDelay):
			}
		}
	}

	if err := s.send(conn, progressMessage{Type: msgDone, Progress: 100}); err != nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(common.WSWriteTimeout))
}

func (s *Server) send(conn *websocket.Conn, msg progressMessage) error {
	conn.SetWriteDeadline(time.Now().Add(common.WSWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Str("type", msg.Type).Msg("progress stream write failed")
		return err
	}
	return nil
}
