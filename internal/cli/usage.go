package cli

import (
	"fmt"
	"strings"

	"github.com/PipeOpsHQ/agent-backend/eval"
)

func printUsage() {
	ids := make([]string, 0, 4)
	for _, s := range eval.DefaultScorers() {
		ids = append(ids, s.ID())
	}
	fmt.Println("PipeOps Agent Backend")
	fmt.Println("Usage:")
	fmt.Println("  agent-backend [serve]")
	fmt.Println("  agent-backend eval --dataset=cases.jsonl [--output=markdown|json] [--fail-under=0] [--scorers=a,b] [--max-cases=50] [--workers=4] [--timeout-ms=60000]")
	fmt.Println("  agent-backend mcp-tools [--user=ID] [--owner=LOGIN]")
	fmt.Println()
	fmt.Printf("  available scorers: %s\n", strings.Join(ids, ", "))
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  PORT                          HTTP port (default 5000)")
	fmt.Println("  BASE_URL                      Public URL used in authorization links")
	fmt.Println("  GITHUB_MCP_URL                Remote GitHub tool server")
	fmt.Println("  GITHUB_CLIENT_ID/SECRET       GitHub OAuth app")
	fmt.Println("  AGENT_STORE_BACKEND           sqlite, postgres or hybrid")
	fmt.Println("  EVAL_SAMPLING_RATE            Fraction of turns scored live")
	fmt.Println("  EVAL_CONFIG                   YAML file with scorer and tool selection")
	fmt.Println("  CLICKHOUSE_DSN                Optional analytics sink")
	fmt.Println("  OTEL_ENABLED                  Emit telemetry as spans")
}
