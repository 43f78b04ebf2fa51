package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"microcraft/internal/config"
	"microcraft/internal/game"
)

// snapshotBody is the subset of a snapshot response the tests inspect
type snapshotBody struct {
	Tick     uint64 `json:"tick"`
	Entities []struct {
		ID      uint32 `json:"id"`
		Faction uint8  `json:"faction"`
		Kind    string `json:"kind"`
	} `json:"entities"`
	Minerals  []game.MineralPatch `json:"minerals"`
	Resources map[string]int      `json:"resources"`
	Fog       map[string]string   `json:"fog"`
}

type statsSourceFunc func() map[string]interface{}

func (f statsSourceFunc) GetStats() map[string]interface{} { return f() }

func doRequest(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// TestSnapshotFactionParameter verifies the faction query is required and checked
func TestSnapshotFactionParameter(t *testing.T) {
	ts := newTestServer(t, RouterConfig{Engine: newMockEngine()})

	tests := []struct {
		query string
		want  int
	}{
		{"", http.StatusBadRequest},
		{"?faction=0", http.StatusBadRequest},
		{"?faction=abc", http.StatusBadRequest},
		{"?faction=300", http.StatusBadRequest},
		{"?faction=9", http.StatusBadRequest},
		{"?faction=1", http.StatusOK},
		{"?faction=2", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp := doRequest(t, "GET", ts.URL+"/api/snapshot"+tt.query, "", nil)
			if resp.StatusCode != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

// TestSnapshotIsFogFiltered verifies each faction only receives what it sees
func TestSnapshotIsFogFiltered(t *testing.T) {
	ts := newTestServer(t, RouterConfig{Engine: newMockEngine()})

	tests := []struct {
		faction  string
		ids      []uint32
		minerals int
	}{
		{"1", []uint32{1, 2, 4}, 1},
		{"2", []uint32{3, 4}, 1},
	}

	for _, tt := range tests {
		t.Run("faction "+tt.faction, func(t *testing.T) {
			resp := doRequest(t, "GET", ts.URL+"/api/snapshot?faction="+tt.faction, "", nil)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Expected 200, got %d", resp.StatusCode)
			}

			var body snapshotBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}

			var ids []uint32
			for _, e := range body.Entities {
				ids = append(ids, e.ID)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			if fmt.Sprint(ids) != fmt.Sprint(tt.ids) {
				t.Errorf("Expected entities %v, got %v", tt.ids, ids)
			}
			if len(body.Minerals) != tt.minerals {
				t.Errorf("Expected %d minerals, got %d", tt.minerals, len(body.Minerals))
			}
			if len(body.Resources) != 1 || len(body.Fog) != 1 {
				t.Errorf("Expected only own bank and fog, got %v and %d grids", body.Resources, len(body.Fog))
			}
			if len(body.Fog[tt.faction]) != 40 {
				t.Errorf("Expected a 40 cell fog string, got %q", body.Fog[tt.faction])
			}
		})
	}
}

// TestPostCommand verifies command decoding, queueing and refusal
func TestPostCommand(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		submitErr error
		want      int
	}{
		{"move", `{"type":"move","faction":1,"unitIds":[2],"target":{"x":4,"y":2}}`, nil, http.StatusAccepted},
		{"produce", `{"type":"produce","faction":1,"unitIds":[1],"kind":"worker"}`, nil, http.StatusAccepted},
		{"missing faction", `{"type":"move","unitIds":[2],"target":{"x":4,"y":2}}`, nil, http.StatusBadRequest},
		{"unknown type", `{"type":"dance","faction":1}`, nil, http.StatusBadRequest},
		{"unknown kind", `{"type":"produce","faction":1,"unitIds":[1],"kind":"dragon"}`, nil, http.StatusBadRequest},
		{"malformed", `{"type":`, nil, http.StatusBadRequest},
		{"inbox full", `{"type":"move","faction":1,"unitIds":[2]}`, game.ErrInboxFull, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newMockEngine()
			engine.submitErr = tt.submitErr
			ts := newTestServer(t, RouterConfig{Engine: engine})

			resp := doRequest(t, "POST", ts.URL+"/api/commands", "", tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("Expected status %d, got %d", tt.want, resp.StatusCode)
			}
			if tt.want == http.StatusServiceUnavailable && resp.Header.Get("Retry-After") == "" {
				t.Error("Expected a Retry-After header")
			}
			if tt.want == http.StatusAccepted {
				cmds := engine.commands()
				if len(cmds) != 1 || cmds[0].Faction != 1 {
					t.Errorf("Expected one command for faction 1, got %+v", cmds)
				}
			}
		})
	}
}

// TestPostCommandDecodesFields verifies the JSON command shape
func TestPostCommandDecodesFields(t *testing.T) {
	engine := newMockEngine()
	ts := newTestServer(t, RouterConfig{Engine: engine})

	body := `{"type":"build","faction":1,"unitIds":[2],"target":{"x":3,"y":2},"kind":"barracks"}`
	resp := doRequest(t, "POST", ts.URL+"/api/commands", "", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	cmd := engine.commands()[0]
	if cmd.Type != game.CommandBuild || cmd.Kind != game.KindBarracks {
		t.Errorf("Expected build barracks, got %s %s", cmd.Type, cmd.Kind)
	}
	if len(cmd.UnitIDs) != 1 || cmd.UnitIDs[0] != 2 {
		t.Errorf("Expected worker 2, got %v", cmd.UnitIDs)
	}
	if cmd.Target.X != 3 || cmd.Target.Y != 2 {
		t.Errorf("Expected target (3,2), got %v", cmd.Target)
	}
}

// TestStatsIncludesOutputs verifies engine and output stats are reported
func TestStatsIncludesOutputs(t *testing.T) {
	ts := newTestServer(t, RouterConfig{
		Engine: newMockEngine(),
		Outputs: map[string]StatsSource{
			"frames": statsSourceFunc(func() map[string]interface{} {
				return map[string]interface{}{"written": 3}
			}),
		},
	})

	resp := doRequest(t, "GET", ts.URL+"/api/stats", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Engine  game.EngineStats                  `json:"engine"`
		Outputs map[string]map[string]interface{} `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Engine.Tick != 40 || body.Engine.Entities != 4 {
		t.Errorf("Expected tick 40 with 4 entities, got %+v", body.Engine)
	}
	if body.Outputs["frames"]["written"] != float64(3) {
		t.Errorf("Expected frames output stats, got %v", body.Outputs)
	}
}

// TestSeatsGuardFactions verifies seat tokens bind a client to one faction
func TestSeatsGuardFactions(t *testing.T) {
	engine := newMockEngine()
	seats := NewSeatManager([]game.Faction{1})
	ts := newTestServer(t, RouterConfig{Engine: engine, Seats: seats})

	if resp := doRequest(t, "GET", ts.URL+"/api/snapshot?faction=1", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a token, got %d", resp.StatusCode)
	}

	resp := doRequest(t, "POST", ts.URL+"/api/seats", "", map[string]int{"faction": 1})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 claiming seat 1, got %d", resp.StatusCode)
	}
	var claim struct {
		Token   string `json:"token"`
		Faction int    `json:"faction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claim); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claim.Token == "" || claim.Faction != 1 {
		t.Fatalf("Expected a token for faction 1, got %+v", claim)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{"claim taken seat", "POST", "/api/seats", "", map[string]int{"faction": 1}, http.StatusConflict},
		{"claim ai seat", "POST", "/api/seats", "", map[string]int{"faction": 2}, http.StatusForbidden},
		{"own snapshot", "GET", "/api/snapshot?faction=1", claim.Token, nil, http.StatusOK},
		{"token in query", "GET", "/api/snapshot?faction=1&token=" + claim.Token, "", nil, http.StatusOK},
		{"enemy snapshot", "GET", "/api/snapshot?faction=2", claim.Token, nil, http.StatusForbidden},
		{"bad token", "GET", "/api/snapshot?faction=1", "bogus", nil, http.StatusUnauthorized},
		{"command for enemy", "POST", "/api/commands", claim.Token, `{"type":"move","faction":2,"unitIds":[3]}`, http.StatusForbidden},
		{"command without token", "POST", "/api/commands", "", `{"type":"move","faction":1,"unitIds":[2]}`, http.StatusUnauthorized},
		{"command implied faction", "POST", "/api/commands", claim.Token, `{"type":"move","unitIds":[2]}`, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, tt.method, ts.URL+tt.path, tt.token, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}

	if cmds := engine.commands(); len(cmds) != 1 || cmds[0].Faction != 1 {
		t.Errorf("Expected one command stamped with faction 1, got %+v", cmds)
	}

	if resp := doRequest(t, "DELETE", ts.URL+"/api/seats", claim.Token, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204 releasing the seat, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, "GET", ts.URL+"/api/snapshot?faction=1", claim.Token, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected released token to be refused, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, "POST", ts.URL+"/api/seats", "", map[string]int{"faction": 1}); resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected seat to be claimable again, got %d", resp.StatusCode)
	}
}

// TestSeatsDisabled verifies the seat routes without a seat manager
func TestSeatsDisabled(t *testing.T) {
	ts := newTestServer(t, RouterConfig{Engine: newMockEngine()})

	resp := doRequest(t, "GET", ts.URL+"/api/seats", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 listing seats, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, "POST", ts.URL+"/api/seats", "", map[string]int{"faction": 1}); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 claiming without seats, got %d", resp.StatusCode)
	}
}

// TestRateLimiting verifies requests beyond the burst are refused
func TestRateLimiting(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.1, Burst: 2, CleanupInterval: time.Minute})
	defer limiter.Stop()
	ts := newTestServer(t, RouterConfig{Engine: newMockEngine(), RateLimiter: limiter})

	var codes []int
	for i := 0; i < 3; i++ {
		resp := doRequest(t, "GET", ts.URL+"/api/stats", "", nil)
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected [200 200 429], got %v", codes)
	}
	if stats := limiter.GetStats()["requests"]; stats["rejected"] != 1 || stats["allowed"] != 2 {
		t.Errorf("Expected 2 allowed and 1 rejected, got %v", stats)
	}
}

// TestCommandRatePerFaction verifies one faction's command budget does not
// throttle another faction
func TestCommandRatePerFaction(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		RequestsPerSecond: 1000,
		Burst:             1000,
		CommandsPerSecond: 0.1,
		CommandBurst:      2,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()
	engine := newMockEngine()
	ts := newTestServer(t, RouterConfig{Engine: engine, RateLimiter: limiter})

	move1 := `{"type":"move","faction":1,"unitIds":[2],"target":{"x":1,"y":1}}`
	move2 := `{"type":"move","faction":2,"unitIds":[4],"target":{"x":1,"y":1}}`

	var codes []int
	for i := 0; i < 3; i++ {
		resp := doRequest(t, "POST", ts.URL+"/api/commands", "", move1)
		codes = append(codes, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests && resp.Header.Get("Retry-After") == "" {
			t.Error("Expected a Retry-After header")
		}
	}
	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected [202 202 429] for faction 1, got %v", codes)
	}

	if resp := doRequest(t, "POST", ts.URL+"/api/commands", "", move2); resp.StatusCode != http.StatusAccepted {
		t.Errorf("Expected faction 2 to pass, got %d", resp.StatusCode)
	}
	if cmds := engine.commands(); len(cmds) != 3 {
		t.Errorf("Expected 3 submitted commands, got %d", len(cmds))
	}
	if stats := limiter.GetStats()["commands"]; stats["allowed"] != 3 || stats["rejected"] != 1 {
		t.Errorf("Expected 3 allowed and 1 rejected commands, got %v", stats)
	}
}

// TestConnectionLimiter verifies per-IP and per-faction caps and release
func TestConnectionLimiter(t *testing.T) {
	l := NewConnectionLimiter(2, 3)

	tests := []struct {
		name    string
		ip      string
		faction game.Faction
		want    error
	}{
		{"first", "1.1.1.1", 1, nil},
		{"same ip", "1.1.1.1", 1, nil},
		{"ip cap", "1.1.1.1", 2, ErrIPConnectionLimit},
		{"other ip", "2.2.2.2", 1, nil},
		{"faction cap", "3.3.3.3", 1, ErrFactionConnLimit},
		{"other faction", "3.3.3.3", 2, nil},
	}

	for _, tt := range tests {
		if err := l.Acquire(tt.ip, tt.faction); err != tt.want {
			t.Errorf("%s: Expected %v, got %v", tt.name, tt.want, err)
		}
	}

	if ip, f := l.Counts("1.1.1.1", 1); ip != 2 || f != 3 {
		t.Errorf("Expected 2 per IP and 3 per faction, got %d and %d", ip, f)
	}
	if stats := l.GetStats(); stats["rejectedIP"] != 1 || stats["rejectedFaction"] != 1 {
		t.Errorf("Expected one rejection of each kind, got %v", stats)
	}

	l.Release("1.1.1.1", 1)
	if err := l.Acquire("3.3.3.3", 1); err != nil {
		t.Errorf("Expected a freed faction slot, got %v", err)
	}
	l.Release("2.2.2.2", 1)
	l.Release("2.2.2.2", 1)
	if ip, _ := l.Counts("2.2.2.2", 1); ip != 0 {
		t.Errorf("Expected released IP to drop to 0, got %d", ip)
	}
}

// TestRateLimitFromConfig verifies server settings override the defaults
func TestRateLimitFromConfig(t *testing.T) {
	cfg := config.DefaultServer()
	cfg.RequestRate = 5
	cfg.RequestBurst = 0
	cfg.CommandRate = 2
	cfg.CommandBurst = 0

	rl := RateLimitFromConfig(cfg)
	if rl.RequestsPerSecond != 5 {
		t.Errorf("Expected 5 rps, got %v", rl.RequestsPerSecond)
	}
	if rl.Burst != DefaultRateLimitConfig.Burst {
		t.Errorf("Expected default burst %d, got %d", DefaultRateLimitConfig.Burst, rl.Burst)
	}
	if rl.CommandsPerSecond != 2 {
		t.Errorf("Expected 2 commands per second, got %v", rl.CommandsPerSecond)
	}
	if rl.CommandBurst != DefaultRateLimitConfig.CommandBurst {
		t.Errorf("Expected default command burst %d, got %d", DefaultRateLimitConfig.CommandBurst, rl.CommandBurst)
	}
}

// TestGetClientIP verifies proxy headers take precedence
func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.0.0.1:5555", "10.0.0.1"},
		{"forwarded", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "10.0.0.1:5555", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "5.6.7.8"}, "10.0.0.1:5555", "5.6.7.8"},
		{"no port", nil, "10.0.0.9", "10.0.0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestOriginPolicy verifies websocket origin checks
func TestOriginPolicy(t *testing.T) {
	p := NewOriginPolicy([]string{"https://play.example.com"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:3000", true},
		{"https://play.example.com", true},
		{"https://evil.example.com", false},
		{"https://play.example.com.evil.net", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			if got := p.IsAllowed(tt.origin); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestHealth verifies the liveness route
func TestHealth(t *testing.T) {
	ts := newTestServer(t, RouterConfig{Engine: newMockEngine()})
	resp := doRequest(t, "GET", ts.URL+"/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

// TestDebugAddr verifies non-loopback debug addresses are replaced
func TestDebugAddr(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:6060", "127.0.0.1:6060"},
		{"127.0.0.1:7070", "127.0.0.1:7070"},
		{"localhost:6061", "localhost:6061"},
		{"[::1]:6060", "[::1]:6060"},
		{"0.0.0.0:6060", localDebugAddr},
		{":6060", localDebugAddr},
		{"garbage", localDebugAddr},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := debugAddr(tt.addr); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestDebugHandler verifies metrics exposure and optional basic auth
func TestDebugHandler(t *testing.T) {
	open := httptest.NewServer(NewDebugHandler(config.DefaultObservability()))
	defer open.Close()

	resp := doRequest(t, "GET", open.URL+"/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %d", resp.StatusCode)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "go_goroutines") {
		t.Error("Expected Go runtime metrics in the exposition")
	}

	cfg := config.DefaultObservability()
	cfg.DebugUser, cfg.DebugPass = "ops", "secret"
	guarded := httptest.NewServer(NewDebugHandler(cfg))
	defer guarded.Close()

	if resp := doRequest(t, "GET", guarded.URL+"/health", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", resp.StatusCode)
	}
	req, _ := http.NewRequest("GET", guarded.URL+"/health", nil)
	req.SetBasicAuth("ops", "secret")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with credentials, got %d", authed.StatusCode)
	}
}
