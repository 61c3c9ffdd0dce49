package extraction

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Flow names used by the dispatcher
const (
	FlowAnalyzeDocument       = "analyzeUploadedDocument"
	FlowExtractFromImage      = "extractStructuredDataFromImage"
	FlowTranscribeHandwriting = "transcribeHandwriting"
	FlowAssistant             = "aiAssistant"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// OutputKind declares the response schema a flow asks the model for
type OutputKind string

const (
	OutputTable            OutputKind = "table"
	OutputTableWithText    OutputKind = "table_with_text"
	OutputTableWithSummary OutputKind = "table_with_summary"
	OutputHeadingValue     OutputKind = "heading_value"
	OutputText             OutputKind = "text"
)

// Flow is one prompt with its declared output
type Flow struct {
	Name   string     `yaml:"-"`
	Output OutputKind `yaml:"output"`
	Field  string     `yaml:"field"`
	System string     `yaml:"system"`
	Prompt string     `yaml:"prompt"`
}

// Structured reports whether the flow answers with a table
func (f Flow) Structured() bool {
	return f.Output != OutputText
}

// Render fills the {{query}} placeholder
func (f Flow) Render(query string) string {
	return strings.TrimSpace(strings.ReplaceAll(f.Prompt, "{{query}}", query))
}

// Catalog holds the prompts of every flow
type Catalog struct {
	Flows map[string]Flow `yaml:"flows"`
}

// LoadCatalog reads a YAML catalog from path, or the embedded default when
// path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultPrompts)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt catalog: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the embedded catalog
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultPrompts)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCatalog decodes and validates a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing prompt catalog: %w", err)
	}

	for name, flow := range c.Flows {
		flow.Name = name
		switch flow.Output {
		case OutputTable, OutputTableWithText, OutputTableWithSummary, OutputHeadingValue:
		case OutputText:
			if flow.Field == "" {
				return nil, fmt.Errorf("flow %s: text output needs a field", name)
			}
		default:
			return nil, fmt.Errorf("flow %s: unknown output %q", name, flow.Output)
		}
		if strings.TrimSpace(flow.Prompt) == "" {
			return nil, fmt.Errorf("flow %s: prompt is empty", name)
		}
		c.Flows[name] = flow
	}

	for _, name := range []string{FlowAnalyzeDocument, FlowExtractFromImage, FlowTranscribeHandwriting, FlowAssistant} {
		if _, ok := c.Flows[name]; !ok {
			return nil, fmt.Errorf("prompt catalog is missing flow %s", name)
		}
	}

	return &c, nil
}

// Flow looks up a flow by name
func (c *Catalog) Flow(name string) (Flow, error) {
	flow, ok := c.Flows[name]
	if !ok {
		return Flow{}, fmt.Errorf("unknown flow %s", name)
	}
	return flow, nil
}
