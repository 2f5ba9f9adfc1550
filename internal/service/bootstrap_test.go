package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"mysql-backup-porter/internal/database"
	"mysql-backup-porter/internal/errors"
	"mysql-backup-porter/internal/logging"
)

type recordedCall struct {
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []recordedCall
	fail  map[string]bool
}

func (fr *fakeRunner) Run(ctx context.Context, name string, args []string, env []string, stdin io.Reader, stdout io.Writer) database.Result {
	fr.mu.Lock()
	fr.calls = append(fr.calls, recordedCall{name: name, args: args})
	fr.mu.Unlock()

	key := name
	if len(args) > 0 {
		key = name + " " + args[0]
	}
	if fr.fail[key] {
		return database.Result{ExitCode: 1, StderrExcerpt: "simulated failure"}
	}
	return database.Result{ExitCode: 0}
}

func (fr *fakeRunner) callKeys() []string {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	keys := make([]string, 0, len(fr.calls))
	for _, c := range fr.calls {
		key := c.name
		if len(c.args) > 0 {
			key += " " + c.args[0]
		}
		keys = append(keys, key)
	}
	return keys
}

type countingEraser struct {
	mu    sync.Mutex
	count int
	paths []string
}

func (ce *countingEraser) EraseDirectory(ctx context.Context, path string) error {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	ce.count++
	ce.paths = append(ce.paths, path)
	return nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		BackupDir:    t.TempDir(),
		Image:        "mysql:8.0",
		RootPassword: "secret",
		Port:         33060,
		WorkRoot:     t.TempDir(),
		Probe:        errors.ProbeConfig{MaxAttempts: 3, Interval: time.Millisecond},
		SettleDelay:  time.Nanosecond,
	}
}

func TestPrepareAndStartRunsPhasesInOrder(t *testing.T) {
	runner := &fakeRunner{}
	eraser := &countingEraser{}
	pinger := func(ctx context.Context, conn database.Config) error { return nil }
	b := NewBootstrapperWithDeps(runner, pinger, eraser, logging.NewDefaultLogger())

	handle, err := b.PrepareAndStart(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("expected bootstrap to succeed, got %v", err)
	}

	keys := runner.callKeys()
	want := []string{"xtrabackup --prepare", "xtrabackup --copy-back", "docker run"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d invocations, got %d: %v", len(want), len(keys), keys)
	}
	for i, w := range want {
		if keys[i] != w {
			t.Errorf("invocation %d: expected %q, got %q", i, w, keys[i])
		}
	}

	if handle.State() != StateReady {
		t.Errorf("expected state %s, got %s", StateReady, handle.State())
	}
	if !strings.HasPrefix(handle.Container, "porter-mysql-") {
		t.Errorf("unexpected container name %s", handle.Container)
	}
	if handle.Conn.Port != 33060 {
		t.Errorf("expected port 33060, got %d", handle.Conn.Port)
	}
	if eraser.count != 0 {
		t.Errorf("eraser should not run during successful bootstrap, ran %d times", eraser.count)
	}

	b.Teardown(context.Background(), handle)
}

func TestPrepareAndStartMissingBackupDir(t *testing.T) {
	runner := &fakeRunner{}
	b := NewBootstrapperWithDeps(runner, nil, &countingEraser{}, logging.NewDefaultLogger())

	cfg := testConfig(t)
	cfg.BackupDir = "/nonexistent/backup/dir"

	_, err := b.PrepareAndStart(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for missing backup directory")
	}
	if !errors.IsFatal(err) {
		t.Error("missing backup directory should be fatal")
	}
	if len(runner.callKeys()) != 0 {
		t.Errorf("no processes should run before validation, got %v", runner.callKeys())
	}
}

func TestPrepareAndStartProbeExhaustionTearsDownOnce(t *testing.T) {
	runner := &fakeRunner{}
	eraser := &countingEraser{}
	pinger := func(ctx context.Context, conn database.Config) error {
		return fmt.Errorf("connection refused")
	}
	b := NewBootstrapperWithDeps(runner, pinger, eraser, logging.NewDefaultLogger())

	_, err := b.PrepareAndStart(context.Background(), testConfig(t))
	if err == nil {
		t.Fatal("expected bootstrap to fail when probe never succeeds")
	}
	if !errors.IsFatal(err) {
		t.Error("probe exhaustion should be fatal")
	}

	if eraser.count != 1 {
		t.Fatalf("expected exactly one teardown erase, got %d", eraser.count)
	}

	keys := runner.callKeys()
	if keys[len(keys)-1] != "docker rm" {
		t.Errorf("expected final invocation to remove container, got %v", keys)
	}
}

func TestPrepareAndStartCopyBackFailure(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"xtrabackup --copy-back": true}}
	eraser := &countingEraser{}
	b := NewBootstrapperWithDeps(runner, nil, eraser, logging.NewDefaultLogger())

	_, err := b.PrepareAndStart(context.Background(), testConfig(t))
	if err == nil {
		t.Fatal("expected bootstrap to fail when copy-back fails")
	}
	if eraser.count != 1 {
		t.Errorf("expected teardown after copy-back failure, erase count %d", eraser.count)
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	eraser := &countingEraser{}
	pinger := func(ctx context.Context, conn database.Config) error { return nil }
	b := NewBootstrapperWithDeps(runner, pinger, eraser, logging.NewDefaultLogger())

	handle, err := b.PrepareAndStart(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	b.Teardown(context.Background(), handle)
	b.Teardown(context.Background(), handle)
	b.Teardown(context.Background(), handle)

	if eraser.count != 1 {
		t.Errorf("expected one erase across repeated teardowns, got %d", eraser.count)
	}
	if handle.State() != StateStopped {
		t.Errorf("expected state %s, got %s", StateStopped, handle.State())
	}
}

func TestTeardownNilHandle(t *testing.T) {
	b := NewBootstrapperWithDeps(&fakeRunner{}, nil, &countingEraser{}, logging.NewDefaultLogger())
	b.Teardown(context.Background(), nil)
}

func TestTeardownSurvivesContainerRemovalFailure(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"docker rm": true}}
	eraser := &countingEraser{}
	b := NewBootstrapperWithDeps(runner, nil, eraser, logging.NewDefaultLogger())

	handle := &Handle{Container: "porter-mysql-test", DataDir: t.TempDir(), state: StateReady}
	b.Teardown(context.Background(), handle)

	if eraser.count != 1 {
		t.Errorf("erase should still run after removal failure, count %d", eraser.count)
	}
	if handle.State() != StateStopped {
		t.Errorf("expected state %s, got %s", StateStopped, handle.State())
	}
}
