package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Ashfaaq98/opencti-mcp/internal/opencti"
)

var (
	cfgFile    string
	openctiURL string
	auditDB    string
	logFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "opencti-mcp",
	Short: "MCP server exposing OpenCTI threat-intelligence query tools",
	Long: `opencti-mcp serves a Model Context Protocol (MCP) tool surface over stdio
for querying an OpenCTI threat-intelligence graph. Tools cover:

- Entity search (malware, intrusion sets, threat actors, TTPs, reports, ...)
- Relationship traversal (malwares of an intrusion set, TTPs of an actor, ...)
- Sector-based analysis (threat actors targeting a sector)
- Temporal report queries sorted by publication date

Configure the OpenCTI connection via the OPENCTI_URL and OPENCTI_TOKEN
environment variables or the matching flags/config keys. The token is
required; the server will not start without it.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.opencti-mcp.yaml)")
	rootCmd.PersistentFlags().StringVar(&openctiURL, "opencti-url", opencti.DefaultURL, "OpenCTI base URL")
	rootCmd.PersistentFlags().StringVar(&auditDB, "audit-db", "", "SQLite path for the tool invocation audit log (disabled when empty)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (stderr when empty)")

	// Bind flags to viper
	viper.BindPFlag("opencti.url", rootCmd.PersistentFlags().Lookup("opencti-url"))
	viper.BindPFlag("audit.path", rootCmd.PersistentFlags().Lookup("audit-db"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".opencti-mcp" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".opencti-mcp")
	}

	// The token is never a flag; it comes from the environment or config file.
	viper.BindEnv("opencti.url", "OPENCTI_URL")
	viper.BindEnv("opencti.token", "OPENCTI_TOKEN")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Set defaults
	viper.SetDefault("opencti.url", opencti.DefaultURL)
	viper.SetDefault("opencti.timeout", 30*time.Second)
	viper.SetDefault("audit.path", "")
	viper.SetDefault("log.file", "")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		OpenCTI: OpenCTIConfig{
			URL:     viper.GetString("opencti.url"),
			Token:   viper.GetString("opencti.token"),
			Timeout: viper.GetDuration("opencti.timeout"),
		},
		Audit: AuditConfig{
			Path: viper.GetString("audit.path"),
		},
		Log: LogConfig{
			File: viper.GetString("log.file"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	OpenCTI OpenCTIConfig `mapstructure:"opencti"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Log     LogConfig     `mapstructure:"log"`
}

type OpenCTIConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AuditConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	File string `mapstructure:"file"`
}
