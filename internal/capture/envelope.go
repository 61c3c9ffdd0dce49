package capture

import "net/http"

// ResultType tags the flow that produced an envelope's data
type ResultType string

const (
	TypeText                     ResultType = "text"
	TypeTable                    ResultType = "table"
	TypeImageAnalysis            ResultType = "imageAnalysis"
	TypeDocumentAnalysis         ResultType = "documentAnalysis"
	TypeHandwritingTranscription ResultType = "handwritingTranscription"
)

// UnknownError is reported when a failure carries no message
const UnknownError = "An unknown error occurred"

type failureKind int

const (
	failureNone failureKind = iota
	failureInvalidInput
	failureInference
)

// Envelope is the uniform result of every dispatch
type Envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     string     `json:"error,omitempty"`
	Type      ResultType `json:"type,omitempty"`
	RequestID string     `json:"requestId,omitempty"`

	failure failureKind
}

func succeeded(requestID string, typ ResultType, data any) Envelope {
	return Envelope{Success: true, Data: data, Type: typ, RequestID: requestID}
}

func invalid(message string) Envelope {
	return Envelope{Success: false, Error: message, failure: failureInvalidInput}
}

func failed(requestID string, message string) Envelope {
	if message == "" {
		message = UnknownError
	}
	return Envelope{Success: false, Error: message, RequestID: requestID, failure: failureInference}
}

// StatusCode maps the envelope onto an HTTP status: rejected input is a
// client error, a failed inference call a bad gateway.
func (e Envelope) StatusCode() int {
	switch {
	case e.Success:
		return http.StatusOK
	case e.failure == failureInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
