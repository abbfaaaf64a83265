// Package cmd implements the grove-script CLI.
package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

var (
	rootConfigPath string
	rootLogLevel   string
	rootVerbose    bool
)

// GetRootCommand builds the root command with all subcommands attached.
func GetRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "grove-script",
		Short: "Run programmable prompt scripts against LLM backends",
		Long: `grove-script parses and executes .ai.yaml prompt scripts: multi-turn
conversations with variable substitution, control flow, sub-script
chaining, and interchangeable LLM backends.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if rootLogLevel != "" {
				if level, err := logrus.ParseLevel(rootLogLevel); err == nil {
					logrus.SetLevel(level)
				}
			}
			if rootVerbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(GetRunCommand())
	rootCmd.AddCommand(GetParseCommand())
	rootCmd.AddCommand(GetRenderCommand())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	})
	return rootCmd
}
