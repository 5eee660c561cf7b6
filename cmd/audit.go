package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ashfaaq98/opencti-mcp/internal/store"
)

var auditLimit int

// auditCmd lists recorded tool invocations in a simple text format.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recorded tool invocations",
	Long: `List recent tool invocations from the audit database written by
"serve --audit-db". Most recent invocations are shown first.

Examples:
  # Show the last 20 invocations
  opencti-mcp audit --audit-db ./data/audit.db

  # Show more history
  opencti-mcp audit --audit-db ./data/audit.db --limit 100`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum number of invocations to show")
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	if config.Audit.Path == "" {
		return fmt.Errorf("no audit database configured; pass --audit-db")
	}

	auditStore, err := store.NewStore(config.Audit.Path)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer auditStore.Close()

	invocations, err := auditStore.RecentInvocations(ctx, auditLimit)
	if err != nil {
		return fmt.Errorf("failed to read invocations: %w", err)
	}

	if len(invocations) == 0 {
		fmt.Println("No invocations recorded.")
		return nil
	}

	for _, inv := range invocations {
		argsJSON, _ := json.Marshal(inv.Args)
		status := "ok"
		if inv.Error != "" {
			status = "error: " + inv.Error
		}
		fmt.Printf("%s  %-45s %s  rows=%d  took=%s  %s\n",
			inv.CreatedAt.Format("2006-01-02 15:04:05"),
			inv.Tool, string(argsJSON), inv.ResultCount, inv.Duration, status)
	}
	return nil
}
