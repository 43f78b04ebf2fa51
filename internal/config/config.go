// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for simulation, opponent and server settings.
//
// Every section has a Default constructor and a FromEnv variant where
// environment variables take precedence over defaults.
package config

import (
	"os"
	"strconv"
	"strings"
)

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimConfig holds tick driver settings.
type SimConfig struct {
	TickRate        int    // Ticks per second
	Seed            int64  // Seed for the simulation rng
	MapFile         string // Optional ASCII map; empty uses the built-in map
	CheckInvariants bool   // Verify grid occupancy every tick
	InboxSize       int    // Queued external commands per tick
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		TickRate:        30,
		Seed:            1,
		CheckInvariants: true,
		InboxSize:       256,
	}
}

// SimFromEnv returns simulation configuration with environment overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if v := getEnvInt("SIM_HZ", 0); v > 0 {
		cfg.TickRate = v
	}
	if v := os.Getenv("SIM_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = seed
		}
	}
	if v := os.Getenv("MAP_FILE"); v != "" {
		cfg.MapFile = v
	}
	if os.Getenv("CHECK_INVARIANTS") == "false" {
		cfg.CheckInvariants = false
	}
	if v := getEnvInt("INBOX_SIZE", 0); v > 0 {
		cfg.InboxSize = v
	}

	return cfg
}

// =============================================================================
// OPPONENT CONFIGURATION
// =============================================================================

// AIConfig holds the scripted opponent thresholds. Durations are in ticks.
type AIConfig struct {
	Factions       []int  // Factions driven by the opponent controller
	MinWorkers     int    // Workers before leaving Scout
	TargetWorkers  int    // Workers before building an army
	ExpandMinerals int    // Bank required to leave Scout
	AttackArmySize int    // Soldiers required to attack
	DefendRadius   int    // Walking distance from base that counts as a threat
	MemoryTTL      int    // How long an enemy sighting is remembered
	ActionCooldown int    // Minimum gap between production orders
	MinDwell       int    // Minimum ticks spent in Scout
	ScoutSpacing   int    // Distance between scout waypoints
	DoctrineFile   string // Optional JSON transition table; empty uses the standard doctrine
}

// DefaultAI returns the default opponent configuration.
func DefaultAI() AIConfig {
	return AIConfig{
		Factions:       []int{2},
		MinWorkers:     4,
		TargetWorkers:  12,
		ExpandMinerals: 50,
		AttackArmySize: 5,
		DefendRadius:   10,
		MemoryTTL:      900, // 30s at 30Hz
		ActionCooldown: 60,  // 2s at 30Hz
		MinDwell:       90,
		ScoutSpacing:   8,
	}
}

// AIFromEnv returns opponent configuration with environment overrides.
func AIFromEnv() AIConfig {
	cfg := DefaultAI()

	if v := os.Getenv("AI_FACTIONS"); v != "" {
		cfg.Factions = parseIntList(v)
	}
	if v := getEnvInt("AI_MIN_WORKERS", 0); v > 0 {
		cfg.MinWorkers = v
	}
	if v := getEnvInt("AI_TARGET_WORKERS", 0); v > 0 {
		cfg.TargetWorkers = v
	}
	if v := getEnvInt("AI_ATTACK_ARMY", 0); v > 0 {
		cfg.AttackArmySize = v
	}
	if v := getEnvInt("AI_DEFEND_RADIUS", 0); v > 0 {
		cfg.DefendRadius = v
	}
	if v := getEnvInt("AI_MEMORY_TTL", 0); v > 0 {
		cfg.MemoryTTL = v
	}
	if v := getEnvInt("AI_ACTION_COOLDOWN", -1); v >= 0 {
		cfg.ActionCooldown = v
	}
	if v := os.Getenv("AI_DOCTRINE"); v != "" {
		cfg.DoctrineFile = v
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port             int
	SnapshotInterval int      // Websocket push interval in milliseconds
	RequestRate      float64  // HTTP requests per second per IP
	RequestBurst     int      // Burst allowance per IP
	CommandRate      float64  // Commands per second per faction, HTTP and websocket together
	CommandBurst     int      // Burst allowance per faction
	AllowedOrigins   []string // CORS origins
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:             3000,
		SnapshotInterval: 100,
		RequestRate:      20,
		RequestBurst:     40,
		CommandRate:      10,
		CommandBurst:     20,
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// ServerFromEnv returns server configuration with environment overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if v := getEnvInt("SNAPSHOT_INTERVAL_MS", 0); v > 0 {
		cfg.SnapshotInterval = v
	}
	if v := getEnvFloat("REQUEST_RATE", 0); v > 0 {
		cfg.RequestRate = v
	}
	if v := getEnvInt("REQUEST_BURST", 0); v > 0 {
		cfg.RequestBurst = v
	}
	if v := getEnvFloat("COMMAND_RATE", 0); v > 0 {
		cfg.CommandRate = v
	}
	if v := getEnvInt("COMMAND_BURST", 0); v > 0 {
		cfg.CommandBurst = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = strings.Split(v, ",")
	}

	return cfg
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// ObservabilityConfig controls the debug server and structured logging.
type ObservabilityConfig struct {
	DebugEnabled bool
	DebugAddr    string // Bound to localhost only
	DebugUser    string // Optional basic auth for the debug server
	DebugPass    string
	LogLevel     string
	LogFormat    string // "json" or "text"
}

// DefaultObservability returns the default observability configuration.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		DebugEnabled: true,
		DebugAddr:    "127.0.0.1:6060",
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// ObservabilityFromEnv returns observability configuration with environment overrides.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservability()

	if os.Getenv("DEBUG_SERVER") == "false" {
		cfg.DebugEnabled = false
	}
	if v := os.Getenv("DEBUG_ADDR"); v != "" {
		cfg.DebugAddr = v
	}
	cfg.DebugUser = os.Getenv("DEBUG_USER")
	cfg.DebugPass = os.Getenv("DEBUG_PASS")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	return cfg
}

// =============================================================================
// OUTPUT CONFIGURATION
// =============================================================================

// OutputConfig holds renderer and event sink settings.
type OutputConfig struct {
	ViewFaction int    // Faction whose fog the renderers draw
	FrameDir    string // PNG frames directory; empty disables frames
	FrameEvery  int    // Write one frame every N ticks
	CellSize    int    // Pixels per cell in PNG frames
	EventLog    string // NDJSON event log path; empty disables it
	ArchivePath string // Parquet archive path; empty disables it
}

// DefaultOutput returns the default output configuration.
func DefaultOutput() OutputConfig {
	return OutputConfig{
		ViewFaction: 1,
		FrameEvery:  30,
		CellSize:    16,
	}
}

// OutputFromEnv returns output configuration with environment overrides.
func OutputFromEnv() OutputConfig {
	cfg := DefaultOutput()

	if v := getEnvInt("VIEW_FACTION", 0); v > 0 {
		cfg.ViewFaction = v
	}
	if v := os.Getenv("FRAME_DIR"); v != "" {
		cfg.FrameDir = v
	}
	if v := getEnvInt("FRAME_EVERY", 0); v > 0 {
		cfg.FrameEvery = v
	}
	if v := getEnvInt("CELL_SIZE", 0); v > 0 {
		cfg.CellSize = v
	}
	if v := os.Getenv("EVENT_LOG"); v != "" {
		cfg.EventLog = v
	}
	if v := os.Getenv("EVENT_ARCHIVE"); v != "" {
		cfg.ArchivePath = v
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Sim           SimConfig
	AI            AIConfig
	Server        ServerConfig
	Observability ObservabilityConfig
	Output        OutputConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Sim:           SimFromEnv(),
		AI:            AIFromEnv(),
		Server:        ServerFromEnv(),
		Observability: ObservabilityFromEnv(),
		Output:        OutputFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// parseIntList parses "1,2" into []int, skipping malformed entries.
func parseIntList(v string) []int {
	var out []int
	for _, part := range strings.Split(v, ",") {
		if i, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, i)
		}
	}
	return out
}
