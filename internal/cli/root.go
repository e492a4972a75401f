// Package cli implements the agent-backend command line: the HTTP server,
// offline scorer replay and remote tool inspection.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/PipeOpsHQ/agent-backend/internal/config"
	"github.com/PipeOpsHQ/agent-backend/internal/logging"
)

// Run executes the command named by args[0] and returns the exit code.
func Run(ctx context.Context, args []string) int {
	if len(args) > 0 {
		switch strings.TrimSpace(args[0]) {
		case "help", "-h", "--help":
			printUsage()
			return 0
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	cmd, rest := "serve", args
	if len(args) > 0 {
		cmd, rest = strings.TrimSpace(args[0]), args[1:]
	}
	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "eval":
		err = runEvalCLI(ctx, cfg, logger, rest)
	case "mcp-tools":
		err = runMCPTools(ctx, cfg, logger, rest)
	default:
		printUsage()
		return 2
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
		return 1
	}
	return 0
}
