package display

import (
	"bytes"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestStatusTickerReportsAndStops(t *testing.T) {
	var fired int32
	ticker := NewStatusTicker(10*time.Millisecond, func(elapsed time.Duration) {
		atomic.AddInt32(&fired, 1)
	})

	ticker.Start()
	time.Sleep(50 * time.Millisecond)
	ticker.Stop()

	count := atomic.LoadInt32(&fired)
	if count == 0 {
		t.Error("Expected at least one status report")
	}

	// No reports after Stop returns.
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&fired) != count {
		t.Error("Ticker reported after Stop returned")
	}
}

func TestStatusTickerStopIdempotent(t *testing.T) {
	ticker := NewStatusTicker(time.Minute, nil)
	ticker.Start()
	ticker.Stop()
	ticker.Stop() // must not panic or block

	neverStarted := NewStatusTicker(time.Minute, nil)
	neverStarted.Stop()
}

func TestStatusTickerDoubleStart(t *testing.T) {
	ticker := NewStatusTicker(time.Minute, nil)
	ticker.Start()
	ticker.Start() // no-op
	ticker.Stop()
}

func TestCountingReaderCountsAllBytes(t *testing.T) {
	payload := strings.Repeat("a", 4096)
	var last int64
	r := NewCountingReader(strings.NewReader(payload), int64(len(payload)), func(read, total int64) {
		last = read
		if total != int64(len(payload)) {
			t.Errorf("Expected total %d, got %d", len(payload), total)
		}
	})

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("Unexpected copy error: %v", err)
	}
	if buf.Len() != len(payload) {
		t.Errorf("Expected %d bytes copied, got %d", len(payload), buf.Len())
	}
	if last != int64(len(payload)) {
		t.Errorf("Expected final progress %d, got %d", len(payload), last)
	}
}

func TestCountingReaderPreservesContent(t *testing.T) {
	payload := "INSERT INTO t VALUES (1);"
	r := NewCountingReader(strings.NewReader(payload), int64(len(payload)), nil)

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Unexpected read error: %v", err)
	}
	if string(data) != payload {
		t.Errorf("Content altered by counting reader: %q", string(data))
	}
}

func TestColorSystemDisabled(t *testing.T) {
	cs := NewColorSystem(DefaultTheme(), true)
	if cs.IsColorSupported() {
		t.Error("Expected colors disabled with noColor")
	}
	if got := cs.Colorize("plain", ColorRed); got != "plain" {
		t.Errorf("Expected passthrough, got %q", got)
	}
	if got := cs.Sprintf(ColorGreen, "%d files", 3); got != "3 files" {
		t.Errorf("Expected plain formatting, got %q", got)
	}
}
