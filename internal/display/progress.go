package display

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// StatusTicker emits a periodic status line while a long-running stage
// executes. It is a best-effort reporter: it holds no resource other than
// the clock, and Stop must be called (and returns only) after the
// background loop has exited, so a stage outcome is never finalized with
// the ticker still running.
type StatusTicker struct {
	interval time.Duration
	report   func(elapsed time.Duration)
	started  time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	active   bool
	mu       sync.Mutex
}

// DefaultStatusInterval is the cadence of the fallback status emitter used
// when no byte-level progress relay is available.
const DefaultStatusInterval = 30 * time.Second

// NewStatusTicker creates a ticker that invokes report every interval.
func NewStatusTicker(interval time.Duration, report func(elapsed time.Duration)) *StatusTicker {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	return &StatusTicker{
		interval: interval,
		report:   report,
	}
}

// Start launches the background status loop. Starting an active ticker is
// a no-op.
func (st *StatusTicker) Start() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active {
		return
	}
	st.active = true
	st.started = time.Now()
	st.stopCh = make(chan struct{})
	st.doneCh = make(chan struct{})

	go st.loop()
}

// Stop signals the loop to exit and waits for it. Safe to call on a ticker
// that was never started, and idempotent.
func (st *StatusTicker) Stop() {
	st.mu.Lock()
	if !st.active {
		st.mu.Unlock()
		return
	}
	st.active = false
	close(st.stopCh)
	st.mu.Unlock()

	<-st.doneCh
}

func (st *StatusTicker) loop() {
	defer close(st.doneCh)

	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()

	for {
		select {
		case <-st.stopCh:
			return
		case <-ticker.C:
			if st.report != nil {
				st.report(time.Since(st.started))
			}
		}
	}
}

// ProgressFunc receives byte-level progress from a Relay-wrapped stream.
type ProgressFunc func(read, total int64)

// Relay wraps a byte stream and surfaces its throughput. Absence of a
// relay is a supported condition: callers fall back to a StatusTicker and
// the import's correctness is unaffected either way.
type Relay interface {
	Wrap(r io.Reader, total int64) io.Reader
}

// DetectRelay returns a terminal progress relay, or nil when stdout is not
// an interactive terminal (piped output, cron).
func DetectRelay(cs ColorSystem) Relay {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return nil
	}
	return &terminalRelay{out: os.Stdout, cs: cs}
}

type terminalRelay struct {
	out io.Writer
	cs  ColorSystem
}

func (tr *terminalRelay) Wrap(r io.Reader, total int64) io.Reader {
	return &progressReader{
		r:     r,
		total: total,
		emit: func(read, totalBytes int64) {
			line := fmt.Sprintf("\r  %s / %s", FormatSize(read), FormatSize(totalBytes))
			if totalBytes > 0 {
				line += fmt.Sprintf(" (%d%%)", read*100/totalBytes)
			}
			fmt.Fprint(tr.out, tr.cs.Colorize(line, tr.cs.Theme().Info))
		},
		minStep: 256 * 1024,
	}
}

// progressReader counts bytes flowing through a reader and reports at
// coarse steps so the terminal is not flooded.
type progressReader struct {
	r       io.Reader
	total   int64
	read    int64
	lastAt  int64
	minStep int64
	emit    ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if pr.read-pr.lastAt >= pr.minStep || err == io.EOF {
			pr.lastAt = pr.read
			if pr.emit != nil {
				pr.emit(pr.read, pr.total)
			}
		}
	}
	return n, err
}

// NewCountingReader exposes the progress reader for callers that supply
// their own sink, primarily tests and the optimized import strategy.
func NewCountingReader(r io.Reader, total int64, emit ProgressFunc) io.Reader {
	return &progressReader{r: r, total: total, minStep: 1, emit: emit}
}
