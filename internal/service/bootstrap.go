// Package service manages the ephemeral MySQL instance an export run reads
// from: physical recovery of the backup, container launch, readiness
// probing, and guaranteed teardown of both the process and the restored
// data directory.
package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"mysql-backup-porter/internal/database"
	"mysql-backup-porter/internal/errors"
	"mysql-backup-porter/internal/logging"
)

// State tracks the handle lifecycle.
type State string

const (
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateStopped  State = "stopped"
)

// Config holds the immutable inputs for one bootstrap.
type Config struct {
	BackupDir    string
	Image        string
	RootPassword string
	Port         int
	WorkRoot     string
	Probe        errors.ProbeConfig
	SettleDelay  time.Duration
}

// DefaultSettleDelay absorbs post-ping initialization races: the server
// answers pings briefly before grants and schemas are fully loaded.
const DefaultSettleDelay = 3 * time.Second

// Handle references the running ephemeral service. It owns the restored
// data directory, not the original backup.
type Handle struct {
	Container string
	DataDir   string
	Conn      database.Config

	state    State
	tornDown bool
	mu       sync.Mutex
}

// State returns the handle's lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Pinger probes service liveness. The default dials a fresh catalog
// connection and pings it.
type Pinger func(ctx context.Context, conn database.Config) error

// Eraser removes a restored data directory. The production implementation
// runs a privileged helper container because the restored files are owned
// by the database service user, not the orchestrator.
type Eraser interface {
	EraseDirectory(ctx context.Context, path string) error
}

// Bootstrapper prepares a backup and starts the ephemeral service.
type Bootstrapper struct {
	runner database.Runner
	pinger Pinger
	eraser Eraser
	logger *logging.Logger
	sleep  func(time.Duration)
}

// NewBootstrapper creates a production bootstrapper.
func NewBootstrapper(logger *logging.Logger) *Bootstrapper {
	runner := database.NewExecRunner()
	return &Bootstrapper{
		runner: runner,
		pinger: defaultPinger,
		eraser: &privilegedEraser{runner: runner, logger: logger},
		logger: logger,
		sleep:  time.Sleep,
	}
}

// NewBootstrapperWithDeps injects collaborators; used by tests.
func NewBootstrapperWithDeps(runner database.Runner, pinger Pinger, eraser Eraser, logger *logging.Logger) *Bootstrapper {
	return &Bootstrapper{
		runner: runner,
		pinger: pinger,
		eraser: eraser,
		logger: logger,
		sleep:  func(time.Duration) {},
	}
}

func defaultPinger(ctx context.Context, conn database.Config) error {
	catalog, err := database.Connect(conn, logging.NewDefaultLogger())
	if err != nil {
		return err
	}
	defer catalog.Close()
	return catalog.Ping(ctx)
}

// PrepareAndStart runs the backup engine's two-phase recovery, launches the
// service container bound to the restored data directory, and probes it
// until ready. On any failure after resources exist, teardown runs before
// the error is returned, so the caller never owns a half-started handle.
func (b *Bootstrapper) PrepareAndStart(ctx context.Context, cfg Config) (*Handle, error) {
	if _, err := os.Stat(cfg.BackupDir); err != nil {
		return nil, errors.NewFatal(errors.ErrorTypeBootstrap,
			fmt.Sprintf("backup directory %s is not accessible", cfg.BackupDir), err)
	}

	workRoot := cfg.WorkRoot
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	dataDir, err := os.MkdirTemp(workRoot, "porter-restore-")
	if err != nil {
		return nil, errors.NewFatal(errors.ErrorTypeBootstrap,
			"failed to create restored data directory", err)
	}

	handle := &Handle{
		Container: "porter-mysql-" + uuid.NewString()[:8],
		DataDir:   dataDir,
		Conn: database.Config{
			Host:     "127.0.0.1",
			Port:     cfg.Port,
			Username: "root",
			Password: cfg.RootPassword,
			Timeout:  5 * time.Second,
		}.WithDefaults(),
		state: StateStarting,
	}

	b.logger.LogServiceLifecycle(handle.Container, "preparing", nil)

	// Phase one: apply the redo log so the backup is consistent.
	if result := b.runner.Run(ctx, "xtrabackup",
		[]string{"--prepare", "--target-dir=" + cfg.BackupDir},
		nil, nil, io.Discard); !result.Ok() {
		b.Teardown(context.Background(), handle)
		return nil, errors.NewFatal(errors.ErrorTypeBootstrap,
			"backup prepare phase failed", result.Err())
	}

	// Phase two: copy the prepared files into the run-owned data directory.
	if result := b.runner.Run(ctx, "xtrabackup",
		[]string{"--copy-back", "--target-dir=" + cfg.BackupDir, "--datadir=" + dataDir},
		nil, nil, io.Discard); !result.Ok() {
		b.Teardown(context.Background(), handle)
		return nil, errors.NewFatal(errors.ErrorTypeBootstrap,
			"backup copy-back phase failed", result.Err())
	}

	if result := b.runner.Run(ctx, "docker", []string{
		"run", "-d",
		"--name", handle.Container,
		"-e", "MYSQL_ROOT_PASSWORD=" + cfg.RootPassword,
		"-v", dataDir + ":/var/lib/mysql",
		"-p", fmt.Sprintf("%d:3306", handle.Conn.Port),
		cfg.Image,
	}, nil, nil, io.Discard); !result.Ok() {
		b.Teardown(context.Background(), handle)
		return nil, errors.NewFatal(errors.ErrorTypeBootstrap,
			"failed to start service container", result.Err())
	}

	b.logger.LogServiceLifecycle(handle.Container, string(StateStarting), nil)

	probeCfg := cfg.Probe
	if probeCfg.MaxAttempts == 0 {
		probeCfg = errors.DefaultProbeConfig()
	}
	if err := errors.Probe(ctx, probeCfg, func() error {
		return b.pinger(ctx, handle.Conn)
	}); err != nil {
		b.Teardown(context.Background(), handle)
		return nil, errors.NewFatal(errors.ErrorTypeBootstrap,
			"service did not become ready within the probe budget", err)
	}

	settle := cfg.SettleDelay
	if settle == 0 {
		settle = DefaultSettleDelay
	}
	b.sleep(settle)

	handle.setState(StateReady)
	b.logger.LogServiceLifecycle(handle.Container, string(StateReady), nil)

	return handle, nil
}

// Teardown stops the service container and erases the restored data
// directory. It is idempotent, never returns an error, and must run on
// every exit path; failures are logged and swallowed because cleanup is
// best-effort.
func (b *Bootstrapper) Teardown(ctx context.Context, handle *Handle) {
	if handle == nil {
		return
	}

	handle.mu.Lock()
	if handle.tornDown {
		handle.mu.Unlock()
		return
	}
	handle.tornDown = true
	handle.state = StateStopped
	handle.mu.Unlock()

	if result := b.runner.Run(ctx, "docker",
		[]string{"rm", "-f", handle.Container}, nil, nil, io.Discard); !result.Ok() {
		b.logger.LogTeardown("remove container "+handle.Container, result.Err())
	} else {
		b.logger.LogTeardown("remove container "+handle.Container, nil)
	}

	if handle.DataDir != "" {
		if err := b.eraser.EraseDirectory(ctx, handle.DataDir); err != nil {
			b.logger.LogTeardown("erase data directory "+handle.DataDir, err)
		} else {
			b.logger.LogTeardown("erase data directory "+handle.DataDir, nil)
		}
	}

	b.logger.LogServiceLifecycle(handle.Container, string(StateStopped), nil)
}

// privilegedEraser removes restored files through a throwaway container so
// root-owned database files can be deleted without running the orchestrator
// as root.
type privilegedEraser struct {
	runner database.Runner
	logger *logging.Logger
}

func (pe *privilegedEraser) EraseDirectory(ctx context.Context, path string) error {
	result := pe.runner.Run(ctx, "docker", []string{
		"run", "--rm",
		"-v", path + ":/restore",
		"busybox",
		"sh", "-c", "rm -rf /restore/* /restore/.[!.]*",
	}, nil, nil, io.Discard)
	if !result.Ok() {
		return result.Err()
	}
	return os.Remove(path)
}
