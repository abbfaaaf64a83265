package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/mattsolo1/grove-script/pkg/config"
)

// frontMatter mirrors the keys the parser lifts out of a script's front
// matter. The parser reads these from a generic map, so the schema is
// maintained here rather than reflected off pkg/script types.
type frontMatter struct {
	Parameters     map[string]interface{} `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Input          []string               `yaml:"input,omitempty" json:"input,omitempty"`
	Output         map[string]interface{} `yaml:"output,omitempty" json:"output,omitempty"`
	ResponseFormat map[string]interface{} `yaml:"response_format,omitempty" json:"response_format,omitempty"`
	CacheTTL       int                    `yaml:"cache_ttl,omitempty" json:"cache_ttl,omitempty"`
}

func main() {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
	}

	cfgSchema := r.Reflect(&config.Config{})
	cfgSchema.Title = "grove-script Configuration"
	cfgSchema.Description = "Schema for the grove-script.yaml configuration file."
	// Every field has a working default; nothing is required.
	cfgSchema.Required = nil
	write("grove-script.schema.json", cfgSchema)

	fmSchema := r.Reflect(&frontMatter{})
	fmSchema.Title = "grove-script Front Matter"
	fmSchema.Description = "Schema for the front-matter section of .ai.yaml scripts."
	fmSchema.Required = nil
	write("script-frontmatter.schema.json", fmSchema)
}

func write(path string, schema *jsonschema.Schema) {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("Error marshaling schema: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}
	log.Printf("Successfully generated schema at %s", path)
}
