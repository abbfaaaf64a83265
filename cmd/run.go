package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-script/pkg/config"
	"github.com/mattsolo1/grove-script/pkg/engine"
	"github.com/mattsolo1/grove-script/pkg/script"
)

var (
	runVars       []string
	runProvider   string
	runModel      string
	runTranscript bool
)

// GetRunCommand builds the run subcommand.
func GetRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Execute a prompt script",
		Long: `Parses and executes a .ai.yaml prompt script against the configured
LLM backend. Script parameters can be overridden with repeated --var
flags.

Example:
  grove-script run review.ai.yaml --var file=main.go --var style=terse`,
		Args: cobra.ExactArgs(1),
		RunE: runScript,
	}

	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Script variable as key=value (repeatable)")
	runCmd.Flags().StringVarP(&runProvider, "provider", "p", "", "Backend family (gemini, openai, anthropic, ollama)")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model name (defaults to the provider's configured model)")
	runCmd.Flags().BoolVar(&runTranscript, "transcript", false, "Print the full conversation transcript")
	return runCmd
}

func runScript(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootConfigPath)
	if err != nil {
		return err
	}
	cfg.ConfigureLogging()

	loader := script.NewLoader()
	scr, err := loader.Load(args[0])
	if err != nil {
		return err
	}

	vars, err := parseVarFlags(runVars)
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg, loader, runProvider, runModel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := eng.Execute(ctx, scr, vars)
	if result != nil {
		if runTranscript {
			fmt.Print(engine.FormatTranscript(result.History))
		}
		fmt.Print(engine.FormatResult(result))
	}
	return err
}
