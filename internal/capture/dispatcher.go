package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/zombor/datacapture/internal/extraction"
	"github.com/zombor/datacapture/internal/media"
)

const (
	imagePrefix    = "data:image"
	documentPrefix = "data:"
)

// Validation messages returned without contacting the model
const (
	MsgInvalidImage       = "Invalid image data URI."
	MsgInvalidDocument    = "Invalid document data URI."
	MsgInvalidHandwriting = "Invalid image data URI for handwriting transcription."
	MsgNoTableData        = "No table data provided."
)

// Dispatcher validates captured payloads and forwards each one to exactly
// one extraction flow. It never returns an error; every failure becomes an
// envelope.
type Dispatcher struct {
	extractor extraction.Extractor
	newID     func() string
}

// NewDispatcher creates a Dispatcher backed by the given extractor
func NewDispatcher(extractor extraction.Extractor) *Dispatcher {
	return &Dispatcher{
		extractor: extractor,
		newID:     uuid.NewString,
	}
}

// HandleTextQuery answers a free-text query. A blank query is not
// dispatched and yields nil.
func (d *Dispatcher) HandleTextQuery(ctx context.Context, query string) *Envelope {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	env := d.run(ctx, "handleTextQuery", TypeText, func(ctx context.Context) (any, error) {
		return d.extractor.Answer(ctx, query)
	})
	return &env
}

// HandleImageUpload extracts a table and the full text from a photo
func (d *Dispatcher) HandleImageUpload(ctx context.Context, dataURI string) Envelope {
	photo, ok := parsePayload(dataURI, imagePrefix)
	if !ok {
		return invalid(MsgInvalidImage)
	}

	return d.run(ctx, "handleImageUpload", TypeImageAnalysis, func(ctx context.Context) (any, error) {
		return normalized(d.extractor.ExtractFromImage(ctx, photo))
	})
}

// HandleDocumentUpload extracts a table from any document
func (d *Dispatcher) HandleDocumentUpload(ctx context.Context, dataURI string) Envelope {
	doc, ok := parsePayload(dataURI, documentPrefix)
	if !ok {
		return invalid(MsgInvalidDocument)
	}

	return d.run(ctx, "handleDocumentUpload", TypeDocumentAnalysis, func(ctx context.Context) (any, error) {
		return normalized(d.extractor.AnalyzeDocument(ctx, doc))
	})
}

// HandleHandwritingTranscription transcribes the handwriting in a photo
func (d *Dispatcher) HandleHandwritingTranscription(ctx context.Context, dataURI string) Envelope {
	photo, ok := parsePayload(dataURI, imagePrefix)
	if !ok {
		return invalid(MsgInvalidHandwriting)
	}

	return d.run(ctx, "handleHandwritingTranscription", TypeHandwritingTranscription, func(ctx context.Context) (any, error) {
		return d.extractor.TranscribeHandwriting(ctx, photo)
	})
}

// HandleTableImport adapts a model answer that was produced elsewhere, in
// any of the response shapes, into the canonical extraction. Nothing is
// dispatched to the model.
func (d *Dispatcher) HandleTableImport(raw string) Envelope {
	if strings.TrimSpace(raw) == "" {
		return invalid(MsgNoTableData)
	}

	x, err := extraction.Decode(raw)
	if err != nil {
		slog.Warn("Rejected table import", "error", err)
		return invalid(fmt.Sprintf("Could not read table data: %v", err))
	}
	return succeeded(d.newID(), TypeTable, *x)
}

func parsePayload(dataURI string, prefix string) (media.Media, bool) {
	if !strings.HasPrefix(dataURI, prefix) {
		return media.Media{}, false
	}
	m, err := media.ParseDataURI(dataURI)
	if err != nil {
		return media.Media{}, false
	}
	return m, true
}

func normalized(x *extraction.Extraction, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if x == nil {
		return nil, extraction.ErrEmptyResponse
	}
	return extraction.Normalize(*x), nil
}

// run performs a single inference call and converts its outcome, including
// a panic, into an envelope.
func (d *Dispatcher) run(ctx context.Context, op string, typ ResultType, call func(context.Context) (any, error)) (env Envelope) {
	requestID := d.newID()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Error in "+op, "request_id", requestID, "panic", r)
			env = failed(requestID, panicMessage(r))
		}
	}()

	data, err := call(ctx)
	if err != nil {
		slog.Error("Error in "+op, "request_id", requestID, "error", err)
		return failed(requestID, err.Error())
	}

	slog.Info("Dispatched capture", "operation", op, "request_id", requestID, "type", typ)
	return succeeded(requestID, typ, data)
}

func panicMessage(r any) string {
	switch v := r.(type) {
	case error:
		return v.Error()
	case string:
		return v
	default:
		return UnknownError
	}
}
