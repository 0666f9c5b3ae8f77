// Kaizen: scoped knowledge MCP server.
//
// Kaizen stores coding knowledge in namespaces and inheriting scopes and
// serves it to AI coding tools over MCP.
//
// Usage:
//
//	kaizen serve             # Start MCP server (stdio transport)
//	kaizen serve --http      # Start MCP server (streamable HTTP)
//	kaizen tree              # Print namespaces and scopes
//	kaizen export [file]     # Write a YAML snapshot
//	kaizen import <file>     # Merge a YAML snapshot
package main

import (
	"fmt"
	"os"

	"github.com/project-kaizen/kaizen/internal/config"
	"github.com/project-kaizen/kaizen/internal/knowledge"
	"github.com/project-kaizen/kaizen/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	dataDir    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kaizen",
	Short: "Kaizen - scoped knowledge for AI coding tools",
	Long: `Kaizen keeps rules, conventions and lessons learned in namespaces and
scopes. Scopes inherit from their parents, so knowledge written once in a
general scope reaches every project below it.

Run "kaizen serve" from your AI tool's MCP configuration.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		logger, err = logging.New(cfg.Log.Level, cfg.Log.Development)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "kaizen v%s\n", version())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	serveCmd.Flags().BoolVar(&serveHTTP, "http", false, "Serve streamable HTTP instead of stdio")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")
	treeCmd.Flags().StringVarP(&treeNamespace, "namespace", "n", "", "Only show this namespace")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(versionCmd)
}

// openStore opens the knowledge store described by the loaded config.
func openStore() (*knowledge.Store, error) {
	store, err := knowledge.New(cfg.Knowledge(), logger.Named("knowledge"))
	if err != nil {
		return nil, fmt.Errorf("opening knowledge store: %w", err)
	}
	return store, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
