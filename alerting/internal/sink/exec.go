package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/joshuaworth/hoistwaywatch/common/models"
)

// ErrCommandTimeout is returned when the alert command outlives its timeout.
var ErrCommandTimeout = errors.New("alert command timed out")

// Executor runs the operator supplied shell command for each alert.
type Executor struct {
	Command string
	// Timeout bounds each run. Zero waits for the command however long it takes.
	Timeout time.Duration
	Shell   []string
	Stdout  io.Writer
	Stderr  io.Writer
}

// NewExecutor returns an executor running command through /bin/sh -c. An empty
// command returns nil.
func NewExecutor(command string, timeout time.Duration) *Executor {
	if command == "" {
		return nil
	}
	return &Executor{
		Command: command,
		Timeout: timeout,
		Shell:   []string{"/bin/sh", "-c"},
		Stdout:  os.Stderr,
		Stderr:  os.Stderr,
	}
}

// AlertEnv returns the variables exported to the alert command.
func AlertEnv(a *models.Alert) []string {
	return []string{
		"HW_ALERT_SEVERITY=" + string(a.Severity),
		"HW_ALERT_ID=" + a.AlertID,
		"HW_ALERT_RULE_ID=" + a.Explanation.RuleID,
		"HW_ALERT_HAZARD_SCORE=" + strconv.FormatFloat(a.HazardScore, 'f', -1, 64),
	}
}

// Run executes the command for a and waits for it to exit.
func (e *Executor) Run(ctx context.Context, a *models.Alert) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, e.Shell[1:]...), e.Command)
	cmd := exec.CommandContext(ctx, e.Shell[0], args...)
	cmd.Env = append(os.Environ(), AlertEnv(a)...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrCommandTimeout, e.Timeout)
	}
	return fmt.Errorf("alert command failed: %w", err)
}
