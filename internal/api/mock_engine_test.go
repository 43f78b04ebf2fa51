package api

import (
	"net/http/httptest"
	"sync"
	"testing"

	"microcraft/internal/game"
	"microcraft/internal/game/spatial"
	"microcraft/internal/game/visibility"
)

// mockEngine implements EngineInterface for testing
type mockEngine struct {
	mu        sync.Mutex
	snap      *game.Snapshot
	submitted []game.Command
	submitErr error
	subs      []chan []game.Event
}

func newMockEngine() *mockEngine {
	return &mockEngine{snap: testSnapshot()}
}

func (m *mockEngine) Snapshot() *game.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *mockEngine) Submit(cmd game.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return m.submitErr
	}
	m.submitted = append(m.submitted, cmd)
	return nil
}

func (m *mockEngine) Stats() game.EngineStats {
	snap := m.Snapshot()
	return game.EngineStats{Tick: snap.Tick, Entities: len(snap.Entities), Resources: snap.Resources}
}

func (m *mockEngine) Subscribe(buffer int) (<-chan []game.Event, func()) {
	ch := make(chan []game.Event, buffer)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, c := range m.subs {
				if c == ch {
					m.subs = append(m.subs[:i], m.subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

func (m *mockEngine) publish(batch []game.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- batch:
		default:
		}
	}
}

func (m *mockEngine) commands() []game.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]game.Command(nil), m.submitted...)
}

// testSnapshot is a 10x4 map split down the middle: faction 1 sees columns
// 0-4 and faction 2 sees columns 5-9. Faction 2's worker at (4,3) stands
// in faction 1's sight.
func testSnapshot() *game.Snapshot {
	const w, h = 10, 4
	terrain := make([]bool, w*h)
	fog1 := make(game.FogGrid, w*h)
	fog2 := make(game.FogGrid, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			terrain[i] = true
			if x < 5 {
				fog1[i] = visibility.Visible
			} else {
				fog2[i] = visibility.Visible
			}
		}
	}
	return &game.Snapshot{
		Sequence: 5,
		Tick:     40,
		Width:    w,
		Height:   h,
		Terrain:  terrain,
		Entities: []game.EntitySnapshot{
			{ID: 1, Kind: game.KindBase, Faction: 1, Cell: spatial.Coord{X: 1, Y: 1}, Footprint: 2, HP: 500, MaxHP: 500, Complete: true},
			{ID: 2, Kind: game.KindWorker, Faction: 1, Cell: spatial.Coord{X: 3, Y: 1}, Footprint: 1, HP: 40, MaxHP: 40, Complete: true},
			{ID: 3, Kind: game.KindBase, Faction: 2, Cell: spatial.Coord{X: 7, Y: 1}, Footprint: 2, HP: 500, MaxHP: 500, Complete: true},
			{ID: 4, Kind: game.KindWorker, Faction: 2, Cell: spatial.Coord{X: 4, Y: 3}, Footprint: 1, HP: 40, MaxHP: 40, Complete: true},
		},
		Minerals: []game.MineralPatch{
			{Cell: spatial.Coord{X: 0, Y: 3}, Amount: 100},
			{Cell: spatial.Coord{X: 9, Y: 3}, Amount: 100},
		},
		Resources: map[game.Faction]int{1: 50, 2: 75},
		Fog:       map[game.Faction]game.FogGrid{1: fog1, 2: fog2},
	}
}

// newTestServer serves a router over engine with a generous rate limit
func newTestServer(t *testing.T, cfg RouterConfig) *httptest.Server {
	t.Helper()
	if cfg.RateLimitConfig == nil && cfg.RateLimiter == nil {
		cfg.RateLimitConfig = &RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			CommandsPerSecond: 1000,
			CommandBurst:      1000,
			CleanupInterval:   DefaultRateLimitConfig.CleanupInterval,
		}
	}
	cfg.DisableLogging = true
	ts := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(ts.Close)
	return ts
}
