package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/voxloop/voxloop/pkg/types"
)

// handleAudio handles GET /v1/sessions/{id}/audio. The WebSocket carries raw
// PCM both ways: binary messages from the client are fed to the session's
// turn detector, and synthesized reply frames are written back as binary
// messages. Connecting to an unknown id creates the session.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("audio websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	sess := s.registry.GetOrCreate(r.PathValue("id"))
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Ingest loop. Feed blocks while a completed turn runs its pipeline,
	// which is the intended backpressure on the caller's audio.
	go func() {
		defer cancel()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageBinary || len(data) == 0 {
				continue
			}
			sess.Feed(types.AudioFrame{
				Data:       data,
				SampleRate: s.sampleRate,
				Channels:   1,
			})
		}
	}()

	// Delivery loop. Ends when the connection drops or the session is
	// removed.
	for {
		frame, ok := sess.Outputs.NextAudio(ctx)
		if !ok {
			break
		}
		if err := conn.Write(ctx, websocket.MessageBinary, frame.Data); err != nil {
			slog.Debug("audio websocket write failed", "session_id", sess.ID, "err", err)
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "session closed")
}

// handleEvents handles GET /v1/sessions/{id}/events. Turn events are pushed
// as JSON text messages in production order. Delivery is best-effort: a
// subscriber that connects after events were produced does not see them.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("events websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	sess := s.registry.GetOrCreate(r.PathValue("id"))
	ctx := r.Context()

	go discardReads(ctx, conn)

	for {
		ev, ok := sess.Outputs.NextEvent(ctx)
		if !ok {
			break
		}
		if err := wsjson.Write(ctx, conn, ev); err != nil {
			slog.Debug("events websocket write failed", "session_id", sess.ID, "err", err)
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "session closed")
}

// discardReads drains incoming messages so the connection's control frames
// keep being processed. The event socket is write-only from our side.
func discardReads(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}
