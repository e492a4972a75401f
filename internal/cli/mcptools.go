package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/PipeOpsHQ/agent-backend/credential"
	"github.com/PipeOpsHQ/agent-backend/internal/config"
)

// runMCPTools connects to the remote tool server as the given identity and
// prints the tools it advertises.
func runMCPTools(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	id := credential.Identity{SessionUserID: cfg.DefaultUserID}
	for _, arg := range args {
		if v, ok := flagValue(arg, "user"); ok {
			id.SessionUserID = v
		} else if v, ok := flagValue(arg, "owner"); ok {
			id.TargetOwner = v
		} else {
			return fmt.Errorf("unknown mcp-tools flag %q", arg)
		}
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	remote, err := a.remote.ListTools(ctx, id)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	for _, t := range remote {
		fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
	}
	return tw.Flush()
}
