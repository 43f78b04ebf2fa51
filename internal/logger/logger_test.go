package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestInitJSON verifies JSON output carries the component field
func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("debug", "json", &buf)

	Component("engine").WithField("tick", 3).Info("tick done")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "engine" {
		t.Errorf("Expected component 'engine', got %v", entry["component"])
	}
	if entry["msg"] != "tick done" {
		t.Errorf("Expected msg 'tick done', got %v", entry["msg"])
	}
}

// TestInitUnknownLevel verifies bad level names fall back to info
func TestInitUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("chatty", "text", &buf)

	if Log.GetLevel() != logrus.InfoLevel {
		t.Errorf("Expected info level, got %s", Log.GetLevel())
	}
	Log.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("Debug line should be filtered at info level, got %q", buf.String())
	}
}
