package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"scanq/internal/config"
	"scanq/internal/model"
)

const (
	defaultSoftLimit = 55 * time.Minute
	defaultHardLimit = time.Hour
)

// CLI runs the external scan engine as a subprocess and parses its
// JSON report from stdout. Each attempt is bounded by a soft limit
// (graceful interrupt) and a hard limit (forced kill).
type CLI struct {
	command string
	args    []string
	soft    time.Duration
	hard    time.Duration
	logger  *slog.Logger
}

func NewCLI(cfg config.EngineConfig, soft, hard time.Duration, logger *slog.Logger) *CLI {
	if soft <= 0 {
		soft = defaultSoftLimit
	}
	if hard <= soft {
		hard = soft + (defaultHardLimit - defaultSoftLimit)
	}
	return &CLI{
		command: cfg.Command,
		args:    cfg.Args,
		soft:    soft,
		hard:    hard,
		logger:  logger,
	}
}

func (c *CLI) Execute(ctx context.Context, target, mode string) (*model.ScanResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.soft)
	defer cancel()

	args := append(append([]string{}, c.args...),
		target,
		"--scan-mode", mode,
		"--report-format", "json",
		"--quiet",
	)

	cmd := exec.CommandContext(runCtx, c.command, args...)
	// Soft limit interrupts for graceful cleanup; after the remaining
	// grace the process is killed outright.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = c.hard - c.soft

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if c.logger != nil {
		c.logger.Info("engine_exec", "command", c.command, "target", target, "mode", mode)
	}

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("scan engine failed: %s: %w", msg, err)
	}

	var result model.ScanResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		// Unparseable output will not improve on retry.
		return nil, Permanent(fmt.Errorf("malformed engine output: %w", err))
	}

	return &result, nil
}
