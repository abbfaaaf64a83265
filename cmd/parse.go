package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mattsolo1/grove-script/pkg/script"
	"github.com/mattsolo1/grove-script/pkg/value"
)

// GetParseCommand builds the parse subcommand, which dumps a script's
// parsed structure without executing anything. Useful for checking how
// the DSL was understood before spending tokens on it.
func GetParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <script>",
		Short: "Parse a script and print its structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scr, err := script.NewLoader().Load(args[0])
			if err != nil {
				return err
			}
			return yaml.NewEncoder(os.Stdout).Encode(scriptSummary(scr))
		},
	}
}

func scriptSummary(scr *script.Script) map[string]interface{} {
	turns := make([]map[string]interface{}, 0, len(scr.Turns))
	for _, turn := range scr.Turns {
		t := map[string]interface{}{}
		var messages []map[string]interface{}
		for _, msg := range turn.Messages {
			m := map[string]interface{}{
				"role":    msg.Role,
				"content": msg.Content,
			}
			if msg.ImmediateFormat {
				m["immediate_format"] = true
			}
			if msg.AIPlaceholder != nil {
				m["ai_placeholder"] = msg.AIPlaceholder.Var
			}
			messages = append(messages, m)
		}
		if messages != nil {
			t["messages"] = messages
		}
		var instructions []string
		for _, in := range turn.Instructions {
			instructions = append(instructions, "$"+in.Name)
		}
		if instructions != nil {
			t["instructions"] = instructions
		}
		if turn.ChainTo != "" {
			t["chain_to"] = turn.ChainTo
			if len(turn.ChainParams) > 0 {
				t["chain_params"] = mapToAny(turn.ChainParams)
			}
		}
		turns = append(turns, t)
	}

	out := map[string]interface{}{
		"source": scr.SourcePath,
		"turns":  turns,
	}
	if len(scr.Parameters) > 0 {
		out["parameters"] = mapToAny(scr.Parameters)
	}
	if len(scr.Input) > 0 {
		out["input"] = scr.Input
	}
	if len(scr.Metadata) > 0 {
		out["metadata"] = mapToAny(scr.Metadata)
	}
	return out
}

func mapToAny(m value.Map) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v.ToAny()
	}
	return out
}
