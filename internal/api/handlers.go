package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"microcraft/internal/game"
)

// Handler methods for routerHandlers
// These are used by both the standalone router (for testing) and the full Server.

func (h *routerHandlers) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	f, err := parseFaction(r.URL.Query().Get("faction"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if code, err := h.authorize(r, f); err != nil {
		writeError(w, err.Error(), code)
		return
	}

	snap := h.engine.Snapshot()
	if snap == nil {
		writeError(w, "Simulation not started", http.StatusServiceUnavailable)
		return
	}
	if _, ok := snap.Resources[f]; !ok {
		writeError(w, fmt.Sprintf("Unknown faction %d", f), http.StatusBadRequest)
		return
	}
	writeJSON(w, snap.ForFaction(f))
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"engine":      h.engine.Stats(),
		"rateLimiter": h.limiter.GetStats(),
	}
	if h.hub != nil {
		stats["websocket"] = h.hub.GetStats()
	}
	if len(h.outputs) > 0 {
		outputs := make(map[string]interface{}, len(h.outputs))
		for name, src := range h.outputs {
			outputs[name] = src.GetStats()
		}
		stats["outputs"] = outputs
	}
	writeJSON(w, stats)
}

func (h *routerHandlers) handlePostCommand(w http.ResponseWriter, r *http.Request) {
	var cmd game.Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<10)).Decode(&cmd); err != nil {
		writeError(w, "Invalid command: "+err.Error(), http.StatusBadRequest)
		return
	}

	f, code, err := h.commandFaction(r, cmd.Faction)
	if err != nil {
		writeError(w, err.Error(), code)
		return
	}
	cmd.Faction = f

	if h.limiter != nil && !h.limiter.AllowCommand(f) {
		w.Header().Set("Retry-After", "1")
		writeError(w, ErrCommandRateLimited.Error(), http.StatusTooManyRequests)
		return
	}

	if err := h.engine.Submit(cmd); err != nil {
		if errors.Is(err, game.ErrInboxFull) {
			w.Header().Set("Retry-After", "1")
			writeError(w, "Command queue full", http.StatusServiceUnavailable)
			return
		}
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "queued",
		"type":    cmd.Type,
		"faction": cmd.Faction,
	})
}

func (h *routerHandlers) handleGetSeats(w http.ResponseWriter, r *http.Request) {
	if h.seats == nil {
		writeJSON(w, []SeatStatus{})
		return
	}
	writeJSON(w, h.seats.Status())
}

func (h *routerHandlers) handleClaimSeat(w http.ResponseWriter, r *http.Request) {
	if h.seats == nil {
		writeError(w, "Seats are disabled", http.StatusNotFound)
		return
	}

	var req struct {
		Faction game.Faction `json:"faction"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	token, seat, err := h.seats.Claim(req.Faction)
	switch {
	case errors.Is(err, ErrSeatTaken):
		writeError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		writeError(w, err.Error(), http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":     token,
		"faction":   seat.Faction,
		"expiresAt": seat.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *routerHandlers) handleReleaseSeat(w http.ResponseWriter, r *http.Request) {
	if h.seats == nil {
		writeError(w, "Seats are disabled", http.StatusNotFound)
		return
	}
	if _, err := h.seats.Validate(r); err != nil {
		writeError(w, err.Error(), http.StatusUnauthorized)
		return
	}
	h.seats.Release(bearerToken(r))
	w.WriteHeader(http.StatusNoContent)
}

// authorize checks that the request may observe faction f. Without a seat
// manager every faction is open.
func (h *routerHandlers) authorize(r *http.Request, f game.Faction) (int, error) {
	return authorizeSeat(h.seats, r, f)
}

// commandFaction resolves which faction a command acts for. With seats the
// token decides and a conflicting body faction is refused.
func (h *routerHandlers) commandFaction(r *http.Request, requested game.Faction) (game.Faction, int, error) {
	if h.seats == nil {
		if requested == game.Neutral {
			return 0, http.StatusBadRequest, errors.New("faction is required")
		}
		return requested, 0, nil
	}
	seat, err := h.seats.Validate(r)
	if err != nil {
		return 0, http.StatusUnauthorized, err
	}
	if requested != game.Neutral && requested != seat.Faction {
		return 0, http.StatusForbidden, fmt.Errorf("seat is for faction %d", seat.Faction)
	}
	return seat.Faction, 0, nil
}

func authorizeSeat(seats *SeatManager, r *http.Request, f game.Faction) (int, error) {
	if seats == nil {
		return 0, nil
	}
	seat, err := seats.Validate(r)
	if err != nil {
		return http.StatusUnauthorized, err
	}
	if seat.Faction != f {
		return http.StatusForbidden, fmt.Errorf("seat is for faction %d", seat.Faction)
	}
	return 0, nil
}

// parseFaction reads a faction query parameter. Neutral is not a player.
func parseFaction(v string) (game.Faction, error) {
	if v == "" {
		return 0, errors.New("faction is required")
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid faction %q", v)
	}
	return game.Faction(n), nil
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
