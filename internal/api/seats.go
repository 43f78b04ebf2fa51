package api

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"microcraft/internal/game"
	"microcraft/internal/logger"
)

// SeatDuration is how long a claimed seat stays valid.
const SeatDuration = 12 * time.Hour

var (
	// ErrSeatUnavailable means the faction is not open to remote players.
	ErrSeatUnavailable = errors.New("seat not open")
	// ErrSeatTaken means another client holds the faction.
	ErrSeatTaken = errors.New("seat already claimed")
	// ErrNoSeat means the request carried no valid seat token.
	ErrNoSeat = errors.New("no valid seat token")
)

// Seat is a remote player's claim on one faction.
type Seat struct {
	Faction   game.Faction `json:"faction"`
	CreatedAt time.Time    `json:"createdAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// SeatStatus is one entry of the seat listing.
type SeatStatus struct {
	Faction game.Faction `json:"faction"`
	Claimed bool         `json:"claimed"`
}

// SeatManager hands out signed tokens binding a client to a faction. A
// token only ever commands and observes its own faction.
type SeatManager struct {
	mu sync.RWMutex

	// Active seats (seat id -> seat)
	seats map[string]*Seat
	// Holder of each open faction (faction -> seat id, empty when free)
	holders map[game.Faction]string

	secretKey []byte
	duration  time.Duration
	now       func() time.Time
	log       *logrus.Entry
}

// NewSeatManager opens a seat for each of factions.
func NewSeatManager(factions []game.Faction) *SeatManager {
	secretKey := make([]byte, 32)
	log := logger.Component("seats")
	if _, err := rand.Read(secretKey); err != nil {
		log.WithError(err).Warn("⚠️ Failed to generate seat secret, using fallback")
		secretKey = []byte("microcraft-default-seat-secret32")
	}

	sm := &SeatManager{
		seats:     make(map[string]*Seat),
		holders:   make(map[game.Faction]string, len(factions)),
		secretKey: secretKey,
		duration:  SeatDuration,
		now:       time.Now,
		log:       log,
	}
	for _, f := range factions {
		sm.holders[f] = ""
	}
	return sm
}

// Claim takes the seat of faction f and returns its token.
func (sm *SeatManager) Claim(f game.Faction) (string, Seat, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	holder, open := sm.holders[f]
	if !open {
		return "", Seat{}, fmt.Errorf("faction %d: %w", f, ErrSeatUnavailable)
	}
	if holder != "" {
		if s := sm.seats[holder]; s != nil && sm.now().Before(s.ExpiresAt) {
			return "", Seat{}, fmt.Errorf("faction %d: %w", f, ErrSeatTaken)
		}
		delete(sm.seats, holder)
	}

	id := generateSeatID()
	now := sm.now()
	seat := &Seat{Faction: f, CreatedAt: now, ExpiresAt: now.Add(sm.duration)}
	sm.seats[id] = seat
	sm.holders[f] = id

	sm.log.WithField("faction", f).Info("🔐 Seat claimed")
	return sm.encodeToken(id), *seat, nil
}

// Release frees the seat behind token. Unknown tokens are ignored.
func (sm *SeatManager) Release(token string) {
	id, err := sm.decodeToken(token)
	if err != nil {
		return
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	seat, ok := sm.seats[id]
	if !ok {
		return
	}
	delete(sm.seats, id)
	if sm.holders[seat.Faction] == id {
		sm.holders[seat.Faction] = ""
	}
	sm.log.WithField("faction", seat.Faction).Info("🔓 Seat released")
}

// Lookup returns the live seat behind token.
func (sm *SeatManager) Lookup(token string) (Seat, bool) {
	id, err := sm.decodeToken(token)
	if err != nil {
		return Seat{}, false
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	seat, ok := sm.seats[id]
	if !ok || sm.now().After(seat.ExpiresAt) {
		return Seat{}, false
	}
	return *seat, true
}

// Validate returns the seat of the request's token, read from an
// "Authorization: Bearer" header or a token query parameter.
func (sm *SeatManager) Validate(r *http.Request) (Seat, error) {
	token := bearerToken(r)
	if token == "" {
		return Seat{}, ErrNoSeat
	}
	seat, ok := sm.Lookup(token)
	if !ok {
		return Seat{}, ErrNoSeat
	}
	return seat, nil
}

// Status lists the open seats in faction order.
func (sm *SeatManager) Status() []SeatStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]SeatStatus, 0, len(sm.holders))
	for f, id := range sm.holders {
		claimed := false
		if s := sm.seats[id]; id != "" && s != nil && sm.now().Before(s.ExpiresAt) {
			claimed = true
		}
		out = append(out, SeatStatus{Faction: f, Claimed: claimed})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Faction < out[j].Faction })
	return out
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter for websocket clients that cannot set headers.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// encodeToken signs a seat id
func (sm *SeatManager) encodeToken(id string) string {
	mac := hmac.New(sha256.New, sm.secretKey)
	mac.Write([]byte(id))
	signature := hex.EncodeToString(mac.Sum(nil))

	return base64.URLEncoding.EncodeToString([]byte(id + "." + signature))
}

// decodeToken verifies a token and extracts the seat id
func (sm *SeatManager) decodeToken(token string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("invalid token encoding")
	}

	parts := strings.SplitN(string(decoded), ".", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid token format")
	}

	mac := hmac.New(sha256.New, sm.secretKey)
	mac.Write([]byte(parts[0]))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(parts[1]), []byte(expected)) {
		return "", fmt.Errorf("invalid token signature")
	}
	return parts[0], nil
}

// generateSeatID creates a cryptographically random seat id
func generateSeatID() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
