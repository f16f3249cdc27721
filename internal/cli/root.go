package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AntoineMrtl/oracle-swap-back/internal/config"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
)

var (
	// Global flags
	configFile  string
	debug       bool
	quiet       bool
	rpcEndpoint string

	// Loaded by PersistentPreRunE
	cfg    *config.Config
	logger *log.Logger
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "oracleswap",
	Short: "oracleswap - oracle-priced two-asset swap pool",
	Long: `oracleswap runs a two-asset swap pool priced by signed oracle updates.
Swaps execute at the oracle exchange rate instead of a bonding curve, and every
price used must be fresh and signed by a trusted publisher.`,
	Version:           "0.1.0-dev",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path (default ./"+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	rootCmd.PersistentFlags().StringVar(&rpcEndpoint, "rpc", "", "RPC endpoint of a running server (default from [rpc])")
}

// loadConfig reads the configuration file and environment and builds the logger.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}

	c, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	level := c.Log.Level
	switch {
	case debug:
		level = "debug"
	case quiet:
		level = "warn"
	}
	var format log.Format
	if err := format.Set(c.Log.Format); err != nil {
		return err
	}
	l, err := log.NewLogger("oracleswap", os.Stderr, format, level)
	if err != nil {
		return err
	}

	cfg, logger = c, l
	if path := c.GetConfigPath(); path != "" {
		logger.WithField("path", path).Debug("Configuration loaded")
	}
	return nil
}
