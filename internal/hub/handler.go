package hub

import (
	"encoding/json"
	"net/http"

	"github.com/huddlekit/huddle/internal/models"
	"github.com/rs/zerolog/log"
)

// ServeWS upgrades an HTTP request into a room-scoped websocket connection.
// The room is selected with the ?room= query parameter; absent means the
// default room.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = h.cfg.DefaultRoom
	}
	redirected := false
	if !h.cfg.AutoCreateRooms && h.pool(room) == nil {
		// The client is placed in the default room and told why.
		log.Warn().Str("room", room).Msg("join refused for unknown room, redirecting")
		room = h.cfg.DefaultRoom
		redirected = true
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConn(h, room, sock)
	h.register(r.Context(), c)

	go c.writePump()
	go c.readPump()

	if redirected {
		h.sendTo(c, models.MustMessage(models.MessageRedirectToDefault, room,
			models.RedirectPayload{Message: "the requested room does not exist; you were moved to the default room"}))
	}
}

// RegisterRoutes attaches the hub's endpoints to a mux.
func (h *Hub) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/rooms", h.handleRooms)
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Hub) handleRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"rooms":   h.RoomNames(),
		"members": h.Stats(),
	})
}
