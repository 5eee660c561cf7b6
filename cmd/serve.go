package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/Ashfaaq98/opencti-mcp/internal/intel"
	"github.com/Ashfaaq98/opencti-mcp/internal/opencti"
	"github.com/Ashfaaq98/opencti-mcp/internal/store"
	"github.com/Ashfaaq98/opencti-mcp/internal/tools"
)

var skipProbe bool

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Start the OpenCTI MCP server on the stdio transport.

The server registers the full tool surface (entity search, relationship
traversal, sector analysis, report queries) and then reads MCP requests
from stdin until the client disconnects or the process is interrupted.

Stdout carries the MCP protocol, so all logging goes to stderr or to the
file given with --log-file.

Examples:
  # Serve with connection settings from the environment
  OPENCTI_URL=https://opencti.example.org OPENCTI_TOKEN=... opencti-mcp serve

  # Serve with an invocation audit log
  opencti-mcp serve --audit-db ./data/audit.db`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&skipProbe, "skip-probe", false, "Skip the startup connectivity probe against OpenCTI")
}

// newLogger builds the process logger. Stdout is owned by the MCP
// transport, so logs go to stderr or to the configured file.
func newLogger(config Config, prefix string) (*log.Logger, func(), error) {
	if config.Log.File == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags), func() {}, nil
	}
	f, err := os.OpenFile(config.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return log.New(f, prefix, log.LstdFlags), func() { f.Close() }, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	logger, closeLogger, err := newLogger(config, "[serve] ")
	if err != nil {
		return err
	}
	defer closeLogger()

	logger.Println("Starting OpenCTI MCP server")

	// Build the single client handle reused for the process lifetime. A
	// missing token fails here, before the transport comes up.
	client, err := opencti.NewClient(opencti.Config{
		URL:     config.OpenCTI.URL,
		Token:   config.OpenCTI.Token,
		Timeout: config.OpenCTI.Timeout,
	}, logger)
	if err != nil {
		return err
	}
	logger.Printf("Using OpenCTI at %s", config.OpenCTI.URL)

	// Warning-only startup probe; a dead platform still serves tools, the
	// failures just surface per-call.
	if !skipProbe {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := client.HealthCheck(probeCtx); err != nil {
			logger.Printf("OpenCTI connectivity probe failed: %v", err)
		}
		cancel()
	}

	// Optional invocation audit log.
	var recorder tools.Recorder
	if config.Audit.Path != "" {
		logger.Printf("Recording tool invocations to %s", config.Audit.Path)
		auditStore, err := store.NewStore(config.Audit.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize audit store: %w", err)
		}
		defer auditStore.Close()
		recorder = &auditRecorder{store: auditStore, logger: logger}
	}

	service := intel.NewService(client, logger)
	mcpServer := tools.NewServer(service, recorder, appVersion, logger)

	stdioServer := server.NewStdioServer(mcpServer)
	stdioServer.SetErrorLogger(logger)

	logger.Println("Serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	logger.Println("Server stopped")
	return nil
}

// auditRecorder adapts the SQLite store to the tools.Recorder interface.
// Audit failures are logged, never surfaced to the tool caller.
type auditRecorder struct {
	store  *store.Store
	logger *log.Logger
}

func (a *auditRecorder) Record(ctx context.Context, tool string, args map[string]any, resultCount int, took time.Duration, callErr error) {
	inv := store.Invocation{
		Tool:        tool,
		Args:        args,
		ResultCount: resultCount,
		Duration:    took,
	}
	if callErr != nil {
		inv.Error = callErr.Error()
	}
	if err := a.store.RecordInvocation(ctx, inv); err != nil {
		a.logger.Printf("Failed to record invocation of %s: %v", tool, err)
	}
}
