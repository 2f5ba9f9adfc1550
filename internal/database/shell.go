package database

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"mysql-backup-porter/internal/logging"
)

// Result is the structured outcome of one client process invocation. It
// replaces exit-code string sniffing: callers branch on Ok and surface the
// stderr excerpt in ledgers and logs.
type Result struct {
	ExitCode      int
	StderrExcerpt string
	RunError      error
}

// Ok reports whether the invocation succeeded.
func (r Result) Ok() bool {
	return r.ExitCode == 0 && r.RunError == nil
}

// Err converts a failed result into an error; nil when the result is ok.
func (r Result) Err() error {
	if r.Ok() {
		return nil
	}
	if r.RunError != nil && r.ExitCode == 0 {
		return fmt.Errorf("client invocation failed: %w", r.RunError)
	}
	if r.StderrExcerpt != "" {
		return fmt.Errorf("client exited with code %d: %s", r.ExitCode, r.StderrExcerpt)
	}
	return fmt.Errorf("client exited with code %d", r.ExitCode)
}

// stderrExcerptLimit bounds how much stderr is carried into ledgers.
const stderrExcerptLimit = 2048

// Runner abstracts process execution so pipelines can be tested without
// the mysql client binaries.
type Runner interface {
	Run(ctx context.Context, name string, args []string, env []string, stdin io.Reader, stdout io.Writer) Result
}

// ExecRunner runs real processes.
type ExecRunner struct{}

// NewExecRunner returns the production process runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the named program and captures a bounded stderr excerpt.
func (er *ExecRunner) Run(ctx context.Context, name string, args []string, env []string, stdin io.Reader, stdout io.Writer) Result {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	excerpt := strings.TrimSpace(stderr.String())
	if len(excerpt) > stderrExcerptLimit {
		excerpt = excerpt[:stderrExcerptLimit]
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return Result{ExitCode: exitErr.ExitCode(), StderrExcerpt: excerpt}
		}
		return Result{ExitCode: -1, StderrExcerpt: excerpt, RunError: err}
	}

	return Result{ExitCode: 0, StderrExcerpt: excerpt}
}

// ShellClient drives the mysql and mysqldump client programs against one
// endpoint. Authentication goes through MYSQL_PWD so the password never
// appears in the process argument list.
type ShellClient struct {
	config Config
	runner Runner
	logger *logging.Logger
}

// NewShellClient creates a client for the endpoint described by config.
func NewShellClient(config Config, logger *logging.Logger) *ShellClient {
	return &ShellClient{
		config: config,
		runner: NewExecRunner(),
		logger: logger,
	}
}

// NewShellClientWithRunner injects a runner; used by tests.
func NewShellClientWithRunner(config Config, runner Runner, logger *logging.Logger) *ShellClient {
	return &ShellClient{
		config: config,
		runner: runner,
		logger: logger,
	}
}

func (c *ShellClient) baseArgs() []string {
	return []string{
		"-h", c.config.Host,
		"-P", strconv.Itoa(c.config.Port),
		"-u", c.config.Username,
	}
}

func (c *ShellClient) env() []string {
	return []string{"MYSQL_PWD=" + c.config.Password}
}

// Execute streams SQL statements into the mysql client against database.
// An empty database name runs the stream without a default schema.
func (c *ShellClient) Execute(ctx context.Context, database string, statements io.Reader) Result {
	args := c.baseArgs()
	if database != "" {
		args = append(args, database)
	}

	start := time.Now()
	result := c.runner.Run(ctx, "mysql", args, c.env(), statements, io.Discard)
	c.logger.LogClientInvocation("mysql", database, result.ExitCode, time.Since(start), result.StderrExcerpt)

	return result
}

// Dump invokes mysqldump for database with the stage-specific extraArgs,
// writing the dump to out.
func (c *ShellClient) Dump(ctx context.Context, database string, extraArgs []string, out io.Writer) Result {
	args := append(c.baseArgs(), extraArgs...)
	args = append(args, database)

	start := time.Now()
	result := c.runner.Run(ctx, "mysqldump", args, c.env(), nil, out)
	c.logger.LogClientInvocation("mysqldump", database, result.ExitCode, time.Since(start), result.StderrExcerpt)

	return result
}
