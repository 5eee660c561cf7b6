package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ashfaaq98/opencti-mcp/internal/opencti"
)

// checkCmd verifies connectivity and credentials against OpenCTI without
// starting the MCP transport.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check OpenCTI connectivity and credentials",
	Long: `Check that the configured OpenCTI instance is reachable and that the
API token is accepted, then exit. Useful before wiring the server into an
MCP client.

Examples:
  OPENCTI_TOKEN=... opencti-mcp check
  opencti-mcp check --opencti-url https://opencti.example.org`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	config := GetConfig()

	logger, closeLogger, err := newLogger(config, "[check] ")
	if err != nil {
		return err
	}
	defer closeLogger()

	client, err := opencti.NewClient(opencti.Config{
		URL:     config.OpenCTI.URL,
		Token:   config.OpenCTI.Token,
		Timeout: config.OpenCTI.Timeout,
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	fmt.Printf("OpenCTI at %s is reachable\n", config.OpenCTI.URL)

	if err := client.ValidateToken(ctx); err != nil {
		return fmt.Errorf("token validation: %w", err)
	}
	fmt.Println("API token accepted")
	return nil
}
