package extraction

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/datacapture/internal/media"
)

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client    *genai.Client
	modelName string
	catalog   *Catalog
	timeout   time.Duration
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(apiKey string, modelName string, catalog *Catalog) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:    client,
		modelName: modelName,
		catalog:   catalog,
		timeout:   90 * time.Second,
	}, nil
}

// AnalyzeDocument extracts a table from a document
func (g *Gemini) AnalyzeDocument(ctx context.Context, doc media.Media) (*Extraction, error) {
	return g.extract(ctx, FlowAnalyzeDocument, doc)
}

// ExtractFromImage extracts a table and the full text from a photo
func (g *Gemini) ExtractFromImage(ctx context.Context, photo media.Media) (*Extraction, error) {
	return g.extract(ctx, FlowExtractFromImage, photo)
}

// TranscribeHandwriting returns the handwritten text in a photo
func (g *Gemini) TranscribeHandwriting(ctx context.Context, photo media.Media) (string, error) {
	flow, err := g.catalog.Flow(FlowTranscribeHandwriting)
	if err != nil {
		return "", err
	}

	parts, err := geminiParts(photo)
	if err != nil {
		return "", err
	}

	text, err := g.generate(ctx, flow, append([]genai.Part{genai.Text(flow.Render(""))}, parts...)...)
	if err != nil {
		return "", err
	}
	return DecodeText(text, flow.Field)
}

// Answer replies to a free-text query
func (g *Gemini) Answer(ctx context.Context, query string) (string, error) {
	flow, err := g.catalog.Flow(FlowAssistant)
	if err != nil {
		return "", err
	}

	text, err := g.generate(ctx, flow, genai.Text(flow.Render(query)))
	if err != nil {
		return "", err
	}
	return DecodeText(text, flow.Field)
}

func (g *Gemini) extract(ctx context.Context, flowName string, m media.Media) (*Extraction, error) {
	flow, err := g.catalog.Flow(flowName)
	if err != nil {
		return nil, err
	}

	parts, err := geminiParts(m)
	if err != nil {
		return nil, err
	}

	text, err := g.generate(ctx, flow, append([]genai.Part{genai.Text(flow.Render(""))}, parts...)...)
	if err != nil {
		return nil, err
	}

	x, err := Decode(text)
	if err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", flowName, err)
	}
	return x, nil
}

// generate runs one flow and returns the concatenated text of the first candidate
func (g *Gemini) generate(ctx context.Context, flow Flow, parts ...genai.Part) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = ResponseSchema(flow)
	if flow.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(flow.System))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini: %w", ErrEmptyResponse)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return responseText.String(), nil
}

// geminiParts turns a capture into request parts. Gemini reads images and
// PDFs natively; spreadsheets and text files are inlined as text.
func geminiParts(m media.Media) ([]genai.Part, error) {
	switch m.Kind() {
	case media.KindImage:
		if media.IsHEIC(m.Data) {
			png, err := media.ToPNG(m)
			if err != nil {
				return nil, err
			}
			return []genai.Part{genai.Blob{MIMEType: "image/png", Data: png}}, nil
		}
		return []genai.Part{genai.Blob{MIMEType: m.MIMEType, Data: m.Data}}, nil
	case media.KindSpreadsheet, media.KindText:
		text, err := media.Text(m)
		if err != nil {
			return nil, fmt.Errorf("reading document text: %w", err)
		}
		return []genai.Part{genai.Text(fmt.Sprintf("Document (%s):\n%s", m.MIMEType, text))}, nil
	default:
		return []genai.Part{genai.Blob{MIMEType: m.MIMEType, Data: m.Data}}, nil
	}
}

// ResponseSchema declares the JSON shape a flow must answer with.
// Every declared field is required.
func ResponseSchema(flow Flow) *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString}
	table := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"headers": {Type: genai.TypeArray, Items: str},
			"rows":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeArray, Items: str}},
		},
		Required: []string{"headers", "rows"},
	}

	props := map[string]*genai.Schema{}
	switch flow.Output {
	case OutputText:
		props[flow.Field] = str
	case OutputHeadingValue:
		props["table"] = &genai.Schema{
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"heading": str,
					"value":   str,
				},
				Required: []string{"heading", "value"},
			},
		}
		props["fullText"] = str
	default:
		props["extractedTable"] = table
		switch flow.Output {
		case OutputTableWithText:
			props["fullText"] = str
		case OutputTableWithSummary:
			props["summary"] = str
		}
	}

	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   slices.Sorted(maps.Keys(props)),
	}
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
