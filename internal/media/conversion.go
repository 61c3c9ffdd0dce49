package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ToPNG converts any supported image payload to PNG.
// PNG input is returned unchanged.
func ToPNG(m Media) ([]byte, error) {
	mimeType := normalizeMIME(m.MIMEType)
	if mimeType == "image/png" && !IsHEIC(m.Data) {
		return m.Data, nil
	}

	var img image.Image
	var err error

	// Go's standard image package doesn't decode HEIC (iPhone photos)
	if IsHEIC(m.Data) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(m.Data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(m.Data))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") {
				return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF. Error: %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// NeedsConversion reports whether a model that only reads PNG/JPEG needs the
// image converted first.
func NeedsConversion(m Media) bool {
	mimeType := normalizeMIME(m.MIMEType)
	if IsHEIC(m.Data) || isHEICMimeType(mimeType) {
		return true
	}
	return mimeType != "image/png" && mimeType != "image/jpeg"
}

// IsHEIC checks the ftyp box for HEIC/HEIF brands
func IsHEIC(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// RenderPDFPages renders up to maxPages pages of a PDF as PNG images.
// maxPages <= 0 renders every page.
func RenderPDFPages(pdfData []byte, maxPages int) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}

	pages := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", i+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding PNG: %w", err)
		}
		pages = append(pages, buf.Bytes())
	}

	return pages, nil
}
