package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrInvalidDataURI is returned when a string cannot be decoded as a data URI.
var ErrInvalidDataURI = errors.New("invalid data URI")

// Media is a decoded capture payload
type Media struct {
	MIMEType string
	Data     []byte
}

// Kind groups MIME types by how the extractors feed them to a model
type Kind int

const (
	KindOther Kind = iota
	KindImage
	KindPDF
	KindSpreadsheet
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPDF:
		return "pdf"
	case KindSpreadsheet:
		return "spreadsheet"
	case KindText:
		return "text"
	default:
		return "other"
	}
}

// ParseDataURI decodes a string of the form data:<mime>[;param...][;base64],<payload>.
// When the MIME type is omitted it is sniffed from the decoded bytes.
func ParseDataURI(s string) (Media, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return Media{}, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}

	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return Media{}, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}

	meta := s[len("data:"):comma]
	payload := s[comma+1:]

	params := strings.Split(meta, ";")
	mimeType := normalizeMIME(params[0])
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	var data []byte
	if isBase64 {
		decoded, err := decodeBase64(payload)
		if err != nil {
			return Media{}, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return Media{}, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
		data = []byte(unescaped)
	}

	if len(data) == 0 {
		return Media{}, fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}

	if mimeType == "" {
		if isBase64 {
			mimeType = normalizeMIME(http.DetectContentType(data))
		} else {
			mimeType = "text/plain"
		}
	}

	return Media{MIMEType: mimeType, Data: data}, nil
}

// decodeBase64 accepts standard and URL-safe alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)

	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// DataURI encodes the media as a base64 data URI
func (m Media) DataURI() string {
	return "data:" + m.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(m.Data)
}

// Kind reports how the payload should be handed to a model
func (m Media) Kind() Kind {
	return KindOf(m.MIMEType)
}

// KindOf classifies a MIME type
func KindOf(mimeType string) Kind {
	mimeType = normalizeMIME(mimeType)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case mimeType == "application/pdf":
		return KindPDF
	case mimeType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		mimeType == "application/vnd.ms-excel":
		return KindSpreadsheet
	case strings.HasPrefix(mimeType, "text/"),
		mimeType == "application/json",
		mimeType == "application/csv":
		return KindText
	default:
		return KindOther
	}
}

// DetectContentType picks the MIME type of an uploaded file: the declared
// type wins, then the file extension, then the leading bytes.
func DetectContentType(filename string, data []byte, declared string) string {
	if ct := normalizeMIME(declared); ct != "" && ct != "application/octet-stream" {
		return ct
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	case ".txt":
		return "text/plain"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}

	if len(data) > 0 {
		return normalizeMIME(http.DetectContentType(data))
	}
	return "application/octet-stream"
}

// Extension returns the file extension used when storing a MIME type
func Extension(mimeType string) string {
	switch normalizeMIME(mimeType) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}

// normalizeMIME lowercases a MIME type and drops its parameters
func normalizeMIME(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimSpace(s))
}
