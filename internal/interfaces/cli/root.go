// Package cli - одноразовый запуск гейта из CI (gatectl).
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreschagin/quality-gate/internal/application/usecase"
	"github.com/dreschagin/quality-gate/internal/bootstrap"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/pkg/config"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
)

// Коды выхода gatectl
const (
	ExitApproved = 0
	ExitError    = 1
	ExitBlocked  = 2
)

// Gate - то, что нужно командам от оркестратора
type Gate interface {
	ValidateForDeployment(ctx context.Context) (*entity.DeploymentValidationResult, error)
	PerformFullQualityValidation(ctx context.Context) (*usecase.FullQualityReport, error)
}

// Builder собирает гейт; release освобождает ресурсы после команды.
type Builder func(ctx context.Context) (gate Gate, release func(ctx context.Context) error, err error)

// ExitCodeError несет код выхода, отличный от ExitError.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string { return e.Err.Error() }

func (e *ExitCodeError) Unwrap() error { return e.Err }

// ExitCode переводит ошибку Execute в код выхода процесса.
func ExitCode(err error) int {
	if err == nil {
		return ExitApproved
	}
	var codeErr *ExitCodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return ExitError
}

func newRootCmd(build Builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gatectl",
		Short:         "Run the deployment quality gate once",
		Long:          "gatectl collects evidence, runs functional probes and health checks against the target and decides whether a deployment may proceed.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newValidateCmd(build))
	cmd.AddCommand(newFullCmd(build))
	cmd.AddCommand(newRulesCmd())
	return cmd
}

// NewRootCmdForTest returns the root command wired to build.
func NewRootCmdForTest(build Builder) *cobra.Command {
	return newRootCmd(build)
}

// Execute запускает gatectl с гейтом из переменных окружения.
func Execute() error {
	return newRootCmd(buildFromEnv).Execute()
}

func buildFromEnv(ctx context.Context) (Gate, func(context.Context) error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	log := logger.New(level)

	app, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		return nil, nil, err
	}
	return app.Orchestrator, app.Close, nil
}

// withGate собирает гейт, выполняет fn и освобождает ресурсы.
func withGate(cmd *cobra.Command, build Builder, fn func(ctx context.Context, gate Gate) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	gate, release, err := build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if release == nil {
			return
		}
		releaseCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
	}()

	return fn(ctx, gate)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gatectl %s (commit: %s)\n", version, commit)
		},
	}
}
