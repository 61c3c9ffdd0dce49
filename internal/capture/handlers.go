package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/datacapture/internal/export"
	"github.com/zombor/datacapture/internal/extraction"
	"github.com/zombor/datacapture/internal/media"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes an error response as {"error": message} with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

func writeEnvelope(w http.ResponseWriter, env Envelope) {
	writeJSON(w, env.StatusCode(), env)
}

// jsonBodyLimit leaves room for the base64 expansion of a data URI
func (s *Server) jsonBodyLimit() int64 {
	return s.maxUploadBytes/3*4 + 64<<10
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.jsonBodyLimit())
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, s.tooLargeMessage(), http.StatusRequestEntityTooLarge)
			return false
		}
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("File is too large. Maximum size is %dMB. Please compress or resize your image.", s.maxUploadBytes>>20)
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticCSS serves the stylesheet
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Write(appCSS)
}

// handleStaticJS serves the UI script
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

// handleQuery answers a free-text query
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	env := s.dispatcher.HandleTextQuery(r.Context(), req.Query)
	if env == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeEnvelope(w, *env)
}

type dataURIRequest struct {
	DataURI string `json:"dataUri"`
}

// handleImageAnalyze extracts a table and the full text from a photo
func (s *Server) handleImageAnalyze(w http.ResponseWriter, r *http.Request) {
	var req dataURIRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	writeEnvelope(w, s.dispatcher.HandleImageUpload(r.Context(), req.DataURI))
}

// handleDocumentAnalyze extracts a table from a document
func (s *Server) handleDocumentAnalyze(w http.ResponseWriter, r *http.Request) {
	var req dataURIRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	writeEnvelope(w, s.dispatcher.HandleDocumentUpload(r.Context(), req.DataURI))
}

// handleHandwriting transcribes handwriting in a photo
func (s *Server) handleHandwriting(w http.ResponseWriter, r *http.Request) {
	var req dataURIRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	writeEnvelope(w, s.dispatcher.HandleHandwritingTranscription(r.Context(), req.DataURI))
}

// handleTableImport adapts a pasted model answer into the canonical shape
func (s *Server) handleTableImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.jsonBodyLimit())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		jsonError(w, s.tooLargeMessage(), http.StatusRequestEntityTooLarge)
		return
	}
	writeEnvelope(w, s.dispatcher.HandleTableImport(string(body)))
}

// readUpload reads the "file" field of a multipart form
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, s.tooLargeMessage(), http.StatusRequestEntityTooLarge)
			return nil, "", false
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return nil, "", false
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return nil, "", false
	}
	defer f.Close()

	if header.Size > s.maxUploadBytes {
		jsonError(w, s.tooLargeMessage(), http.StatusRequestEntityTooLarge)
		return nil, "", false
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return nil, "", false
	}

	return data, media.DetectContentType(header.Filename, data, header.Header.Get("Content-Type")), true
}

// handleUpload turns an uploaded file into a data URI and dispatches it.
// kind is image, document, or handwriting; it defaults by content type.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	dataURI := media.Media{MIMEType: contentType, Data: data}.DataURI()
	kind := strings.ToLower(r.FormValue("kind"))
	if kind == "" {
		kind = "document"
		if media.KindOf(contentType) == media.KindImage {
			kind = "image"
		}
	}

	switch kind {
	case "image":
		writeEnvelope(w, s.dispatcher.HandleImageUpload(r.Context(), dataURI))
	case "document":
		writeEnvelope(w, s.dispatcher.HandleDocumentUpload(r.Context(), dataURI))
	case "handwriting":
		writeEnvelope(w, s.dispatcher.HandleHandwritingTranscription(r.Context(), dataURI))
	default:
		jsonError(w, fmt.Sprintf("Unknown upload kind %q", kind), http.StatusBadRequest)
	}
}

// handleUploadCapture stores a webcam photo
func (s *Server) handleUploadCapture(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	preview := s.service.UploadCapture(r.Context(), data, contentType)
	switch {
	case preview.IsStoredURL:
		writeJSON(w, http.StatusCreated, preview)
	case preview.PreviewURL == "":
		setCORSHeaders(w)
		writeJSON(w, http.StatusBadRequest, preview)
	default:
		writeJSON(w, http.StatusOK, preview)
	}
}

// handleListCaptures returns all stored captures
func (s *Server) handleListCaptures(w http.ResponseWriter, r *http.Request) {
	captures, err := s.service.ListCaptures()
	if err != nil {
		slog.Error("Error listing captures", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if captures == nil {
		captures = []*Capture{}
	}
	writeJSON(w, http.StatusOK, captures)
}

// handleGetCaptureFile serves a stored photo
func (s *Server) handleGetCaptureFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetCaptureFile(r.Context(), r.PathValue("name"))
	if err != nil {
		if !errors.Is(err, ErrCaptureNotFound) {
			slog.Error("Error getting capture file", "name", r.PathValue("name"), "error", err)
		}
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteCapture deletes a capture and its file
func (s *Server) handleDeleteCapture(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteCapture(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrCaptureNotFound) {
		jsonError(w, "Capture not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error deleting capture", "id", r.PathValue("id"), "error", err)
		jsonError(w, "Error deleting capture", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleExport renders a table as a file download. The body is either
// {"title", "table"} or a whole extraction.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.PathValue("format"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	var req struct {
		Title          string                     `json:"title"`
		Table          *extraction.ExtractedTable `json:"table"`
		ExtractedTable *extraction.ExtractedTable `json:"extractedTable"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	var table extraction.ExtractedTable
	switch {
	case req.Table != nil:
		table = *req.Table
	case req.ExtractedTable != nil:
		table = *req.ExtractedTable
	}
	table = extraction.NormalizeTable(table)

	var buf bytes.Buffer
	if err := export.Write(&buf, format, table, req.Title); err != nil {
		if errors.Is(err, export.ErrNoData) {
			jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		slog.Error("Error exporting table", "format", format, "error", err)
		jsonError(w, "Error exporting table", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename()))
	w.Write(buf.Bytes())
}

// handleDeviceError describes a browser camera or microphone failure
func (s *Server) handleDeviceError(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Device  string `json:"device"`
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	device, err := ParseDevice(req.Device)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	description := DescribeDeviceError(device, req.Name, req.Message)
	slog.Warn("Device error", "device", device, "name", req.Name, "message", req.Message)
	writeJSON(w, http.StatusOK, map[string]string{"description": description})
}
