package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestRecordTick verifies tick counters and the entity gauge
func TestRecordTick(t *testing.T) {
	before := testutil.ToFloat64(tickTotal)
	RecordTick(2*time.Millisecond, 17)

	if got := testutil.ToFloat64(tickTotal) - before; got != 1 {
		t.Errorf("Expected tick counter +1, got %v", got)
	}
	if got := testutil.ToFloat64(entityCount); got != 17 {
		t.Errorf("Expected entity gauge 17, got %v", got)
	}
}

// TestRecordCommandRejected verifies the reason label
func TestRecordCommandRejected(t *testing.T) {
	RecordCommandRejected("queue full")
	RecordCommandRejected("queue full")

	if got := testutil.ToFloat64(commandsRejected.WithLabelValues("queue full")); got != 2 {
		t.Errorf("Expected 2 rejections, got %v", got)
	}
}

// TestStatusClass verifies status codes collapse into bounded labels
func TestStatusClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{429, "4xx"},
		{503, "5xx"},
	}
	for _, tt := range tests {
		if got := statusClass(tt.status); got != tt.want {
			t.Errorf("statusClass(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
