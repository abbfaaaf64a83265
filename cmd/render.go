package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-script/pkg/script"
	"github.com/mattsolo1/grove-script/pkg/template"
	"github.com/mattsolo1/grove-script/pkg/value"
)

var renderVars []string

// GetRenderCommand builds the render subcommand: a dry run of the
// template pass over every message, with no network calls. Replacement
// and AI placeholders are left as-is so authors can see exactly what
// will be resolved at execution time.
func GetRenderCommand() *cobra.Command {
	renderCmd := &cobra.Command{
		Use:   "render <script>",
		Short: "Render a script's templates without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scr, err := script.NewLoader().Load(args[0])
			if err != nil {
				return err
			}
			vars, err := parseVarFlags(renderVars)
			if err != nil {
				return err
			}
			vars = value.Merge(scr.Parameters, vars)

			for i, turn := range scr.Turns {
				if i > 0 {
					fmt.Println("---")
				}
				for _, msg := range turn.Messages {
					fmt.Printf("%s:\n%s\n", msg.Role, template.Render(msg.Content, vars))
				}
				if turn.ChainTo != "" {
					fmt.Printf("-> %s\n", turn.ChainTo)
				}
			}
			return nil
		},
	}
	renderCmd.Flags().StringArrayVar(&renderVars, "var", nil, "Script variable as key=value (repeatable)")
	return renderCmd
}
