package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/datacapture/internal/media"
)

// maxPDFPages bounds how many rendered pages are sent to a vision model
const maxPDFPages = 4

// Ollama implements the Extractor interface using Ollama
type Ollama struct {
	baseURL string
	model   string
	catalog *Catalog
	client  *http.Client
}

// NewOllama creates a new Ollama Extractor instance
// Recommended models for document extraction:
//   - qwen2.5vl (good OCR and table layout)
//   - llava:latest (general purpose vision model)
//   - llama3.2-vision
//
// PDFs are rendered to images first since these models cannot read them.
func NewOllama(baseURL string, modelName string, catalog *Catalog) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   modelName,
		catalog: catalog,
		client: &http.Client{
			Timeout: 180 * time.Second, // vision models are slow on CPU
		},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// AnalyzeDocument extracts a table from a document
func (o *Ollama) AnalyzeDocument(ctx context.Context, doc media.Media) (*Extraction, error) {
	return o.extract(ctx, FlowAnalyzeDocument, doc)
}

// ExtractFromImage extracts a table and the full text from a photo
func (o *Ollama) ExtractFromImage(ctx context.Context, photo media.Media) (*Extraction, error) {
	return o.extract(ctx, FlowExtractFromImage, photo)
}

// TranscribeHandwriting returns the handwritten text in a photo
func (o *Ollama) TranscribeHandwriting(ctx context.Context, photo media.Media) (string, error) {
	flow, err := o.catalog.Flow(FlowTranscribeHandwriting)
	if err != nil {
		return "", err
	}

	msg, err := ollamaUserMessage(flow.Render(""), photo)
	if err != nil {
		return "", err
	}

	text, err := o.chat(ctx, flow, msg)
	if err != nil {
		return "", err
	}
	return DecodeText(text, flow.Field)
}

// Answer replies to a free-text query
func (o *Ollama) Answer(ctx context.Context, query string) (string, error) {
	flow, err := o.catalog.Flow(FlowAssistant)
	if err != nil {
		return "", err
	}

	text, err := o.chat(ctx, flow, ollamaMessage{Role: "user", Content: flow.Render(query)})
	if err != nil {
		return "", err
	}
	return DecodeText(text, flow.Field)
}

func (o *Ollama) extract(ctx context.Context, flowName string, m media.Media) (*Extraction, error) {
	flow, err := o.catalog.Flow(flowName)
	if err != nil {
		return nil, err
	}

	msg, err := ollamaUserMessage(flow.Render(""), m)
	if err != nil {
		return nil, err
	}

	text, err := o.chat(ctx, flow, msg)
	if err != nil {
		return nil, err
	}

	x, err := Decode(text)
	if err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", flowName, err)
	}
	return x, nil
}

// ollamaUserMessage attaches the capture to the prompt: images as base64
// PNG/JPEG, PDFs as rendered pages, text documents inline.
func ollamaUserMessage(prompt string, m media.Media) (ollamaMessage, error) {
	msg := ollamaMessage{Role: "user", Content: prompt}

	switch m.Kind() {
	case media.KindImage:
		data := m.Data
		if media.NeedsConversion(m) {
			png, err := media.ToPNG(m)
			if err != nil {
				return ollamaMessage{}, err
			}
			data = png
		}
		msg.Images = []string{base64.StdEncoding.EncodeToString(data)}
	case media.KindPDF:
		pages, err := media.RenderPDFPages(m.Data, maxPDFPages)
		if err != nil {
			return ollamaMessage{}, fmt.Errorf("converting PDF to images: %w", err)
		}
		for _, page := range pages {
			msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(page))
		}
	case media.KindSpreadsheet, media.KindText:
		text, err := media.Text(m)
		if err != nil {
			return ollamaMessage{}, fmt.Errorf("reading document text: %w", err)
		}
		msg.Content = fmt.Sprintf("%s\n\nDocument (%s):\n%s", prompt, m.MIMEType, text)
	default:
		return ollamaMessage{}, fmt.Errorf("unsupported content type for ollama: %s", m.MIMEType)
	}

	return msg, nil
}

// chat sends a single non-streaming chat request and returns the reply text
func (o *Ollama) chat(ctx context.Context, flow Flow, user ollamaMessage) (string, error) {
	messages := make([]ollamaMessage, 0, 2)
	if flow.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: flow.System})
	}
	messages = append(messages, user)

	reqBody := ollamaChatRequest{
		Model:    o.model,
		Stream:   false,
		Messages: messages,
		Format:   "json",
		Options:  map[string]any{"temperature": 0},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	text := strings.TrimSpace(chatResp.Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
