package capture

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		extractor   *mockExtractor
		db          *mockDB
		storage     *mockStorage
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		dispatcher := NewDispatcher(extractor)
		service := NewService(db, storage)
		server = NewServerWithMux(dispatcher, service, auth, http.NewServeMux(), WithMaxUploadBytes(1<<20))
		ghttpServer = ghttp.NewServer()
		ghttpServer.SetAllowUnhandledRequests(true)
		ghttpServer.RouteToHandler("GET", regexp.MustCompile(".*"), server.ServeHTTP)
		ghttpServer.RouteToHandler("POST", regexp.MustCompile(".*"), server.ServeHTTP)
		ghttpServer.RouteToHandler("DELETE", regexp.MustCompile(".*"), server.ServeHTTP)
		ghttpServer.RouteToHandler("OPTIONS", regexp.MustCompile(".*"), server.ServeHTTP)
	}

	postJSON := func(path string, body any) *http.Response {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.Post(ghttpServer.URL()+path, "application/json", bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	postFile := func(path, filename string, content []byte, fields map[string]string) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		for k, v := range fields {
			Expect(writer.WriteField(k, v)).To(Succeed())
		}
		if filename != "" {
			part, err := writer.CreateFormFile("file", filename)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(content)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghttpServer.URL()+path, writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decodeEnvelope := func(resp *http.Response) map[string]any {
		defer resp.Body.Close()
		var env map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&env)).To(Succeed())
		return env
	}

	BeforeEach(func() {
		extractor = newMockExtractor()
		db = newMockDB()
		storage = newMockStorage()
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleIndex", func() {
		It("should return the HTML interface", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("Data Capture"))
		})

		It("should serve the script", func() {
			resp, err := http.Get(ghttpServer.URL() + "/static/app.js")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/javascript"))
		})

		It("should not serve unknown paths", func() {
			resp, err := http.Get(ghttpServer.URL() + "/nope")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject a wrong password", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should leave the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should answer preflight requests", func() {
			req, err := http.NewRequest("OPTIONS", ghttpServer.URL()+"/api/query", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
		})
	})

	Describe("handleQuery", func() {
		It("should return the answer envelope", func() {
			env := decodeEnvelope(postJSON("/api/query", map[string]string{"query": "hello"}))
			Expect(env["success"]).To(BeTrue())
			Expect(env["data"]).To(Equal("mock answer"))
			Expect(env["type"]).To(Equal("text"))
			Expect(env["requestId"]).NotTo(BeEmpty())
		})

		It("should not dispatch a blank query", func() {
			resp := postJSON("/api/query", map[string]string{"query": " "})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(extractor.calls).To(BeZero())
		})

		It("should reject a malformed body", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/query", "application/json", strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			body := decodeEnvelope(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(Equal("Invalid request body"))
		})

		It("should map a model failure to bad gateway", func() {
			extractor.err = errors.New("model offline")
			resp := postJSON("/api/query", map[string]string{"query": "hello"})
			env := decodeEnvelope(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(env["success"]).To(BeFalse())
			Expect(env["error"]).To(Equal("model offline"))
		})
	})

	Describe("handleImageAnalyze", func() {
		It("should return the extraction", func() {
			resp := postJSON("/api/images/analyze", map[string]string{"dataUri": pngDataURI})
			env := decodeEnvelope(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env["type"]).To(Equal("imageAnalysis"))
			data := env["data"].(map[string]any)
			Expect(data["extractedTable"]).To(HaveKeyWithValue("headers", ConsistOf("Order ID", "Customer")))
			Expect(data["fullText"]).To(Equal("Order 101 John Doe"))
		})

		It("should reject a non-image payload", func() {
			resp := postJSON("/api/images/analyze", map[string]string{"dataUri": "not a data uri"})
			env := decodeEnvelope(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(env).To(Equal(map[string]any{"success": false, "error": "Invalid image data URI."}))
			Expect(extractor.calls).To(BeZero())
		})
	})

	Describe("handleDocumentAnalyze", func() {
		It("should return the extraction", func() {
			resp := postJSON("/api/documents/analyze", map[string]string{"dataUri": "data:text/csv;base64,YSxiCjEsMgo="})
			env := decodeEnvelope(resp)
			Expect(env["type"]).To(Equal("documentAnalysis"))
		})
	})

	Describe("handleHandwriting", func() {
		It("should return the transcription", func() {
			resp := postJSON("/api/handwriting/transcribe", map[string]string{"dataUri": pngDataURI})
			env := decodeEnvelope(resp)
			Expect(env["type"]).To(Equal("handwritingTranscription"))
			Expect(env["data"]).To(Equal("mock answer"))
		})
	})

	Describe("handleTableImport", func() {
		It("should normalize the posted answer", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/tables/import", "application/json",
				strings.NewReader(`{"extractedTable": {"headers": ["A"]}}`))
			Expect(err).NotTo(HaveOccurred())
			env := decodeEnvelope(resp)
			Expect(env["type"]).To(Equal("table"))
			data := env["data"].(map[string]any)
			Expect(data["extractedTable"]).To(HaveKeyWithValue("rows", BeEmpty()))
		})
	})

	Describe("handleUpload", func() {
		It("should analyze an uploaded image", func() {
			resp := postFile("/api/uploads", "photo.png", []byte("\x89PNG\r\n\x1a\n"), nil)
			env := decodeEnvelope(resp)
			Expect(env["type"]).To(Equal("imageAnalysis"))
			Expect(extractor.lastMedia.MIMEType).To(Equal("image/png"))
		})

		It("should analyze an uploaded document", func() {
			resp := postFile("/api/uploads", "orders.csv", []byte("a,b\n1,2\n"), nil)
			env := decodeEnvelope(resp)
			Expect(env["type"]).To(Equal("documentAnalysis"))
			Expect(extractor.lastMedia.Data).To(Equal([]byte("a,b\n1,2\n")))
		})

		It("should transcribe when asked for handwriting", func() {
			resp := postFile("/api/uploads", "note.png", []byte("\x89PNG\r\n\x1a\n"), map[string]string{"kind": "handwriting"})
			env := decodeEnvelope(resp)
			Expect(env["type"]).To(Equal("handwritingTranscription"))
		})

		It("should reject an unknown kind", func() {
			resp := postFile("/api/uploads", "note.png", []byte("\x89PNG\r\n\x1a\n"), map[string]string{"kind": "audio"})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should require a file", func() {
			resp := postFile("/api/uploads", "", nil, map[string]string{"kind": "image"})
			body := decodeEnvelope(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(Equal("No file was selected. Please choose a file to upload."))
		})

		It("should reject files over the limit", func() {
			resp := postFile("/api/uploads", "big.png", bytes.Repeat([]byte("x"), 3<<19), nil)
			body := decodeEnvelope(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
			Expect(body["error"]).To(ContainSubstring("Maximum size is 1MB"))
			Expect(extractor.calls).To(BeZero())
		})
	})

	Describe("captures", func() {
		It("should store an uploaded photo", func() {
			resp := postFile("/api/captures", "photo.png", []byte("\x89PNG\r\n\x1a\n"), nil)
			preview := decodeEnvelope(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(preview["isStoredUrl"]).To(BeTrue())
			Expect(preview["previewUrl"]).To(HavePrefix("https://storage.example.test/photo-"))
			Expect(db.captures).To(HaveLen(1))
		})

		It("should fall back to a local preview when storage fails", func() {
			storage.saveErr = errors.New("bucket down")
			resp := postFile("/api/captures", "photo.png", []byte("\x89PNG\r\n\x1a\n"), nil)
			preview := decodeEnvelope(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(preview["isStoredUrl"]).To(BeFalse())
			Expect(preview["previewUrl"]).To(HavePrefix("data:image/png;base64,"))
			Expect(preview["error"]).To(Equal(MsgUploadFailed))
		})

		It("should list captures", func() {
			db.captures["a"] = &Capture{ID: "a", Filename: "photo-1.png"}
			resp, err := http.Get(ghttpServer.URL() + "/api/captures")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var captures []*Capture
			Expect(json.NewDecoder(resp.Body).Decode(&captures)).To(Succeed())
			Expect(captures).To(HaveLen(1))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
		})

		It("should return an error when listing fails", func() {
			db.listErr = errors.New("db error")
			resp, err := http.Get(ghttpServer.URL() + "/api/captures")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})

		It("should serve a stored file", func() {
			storage.files["photo-1.png"] = []byte("png bytes")
			resp, err := http.Get(ghttpServer.URL() + "/api/captures/files/photo-1.png")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("png bytes"))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
		})

		It("should return not found for a missing file", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/captures/files/photo-9.png")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should delete a capture", func() {
			db.captures["a"] = &Capture{ID: "a", Filename: "photo-1.png"}
			storage.files["photo-1.png"] = []byte("png")
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/captures/a", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.captures).To(BeEmpty())
		})

		It("should return not found when deleting an unknown capture", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/captures/zzz", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleExport", func() {
		table := map[string]any{
			"headers": []string{"A", "B"},
			"rows":    [][]string{{"1,2", `x"y`}},
		}

		It("should download a CSV file", func() {
			resp := postJSON("/api/export/csv", map[string]any{"table": table})
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/csv; charset=utf-8"))
			Expect(resp.Header.Get("Content-Disposition")).To(Equal(`attachment; filename="extracted_data.csv"`))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("A,B\n\"1,2\",\"x\"\"y\"\n"))
		})

		It("should accept a whole extraction", func() {
			resp := postJSON("/api/export/pdf", map[string]any{"extractedTable": table, "fullText": "ignored"})
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(HavePrefix("%PDF-"))
		})

		It("should download an XLSX file", func() {
			resp := postJSON("/api/export/xlsx", map[string]any{"table": table})
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("extracted_data.xlsx"))
		})

		It("should refuse an empty table", func() {
			resp := postJSON("/api/export/csv", map[string]any{"table": map[string]any{"headers": []string{"A"}}})
			body := decodeEnvelope(resp)
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			Expect(body["error"]).To(Equal("no data to export"))
		})

		It("should render a placeholder PDF for an empty table", func() {
			resp := postJSON("/api/export/pdf", map[string]any{})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject an unknown format", func() {
			resp := postJSON("/api/export/html", map[string]any{"table": table})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleDeviceError", func() {
		It("should describe the error", func() {
			resp := postJSON("/api/device-errors", map[string]string{"device": "camera", "name": "NotFoundError"})
			body := decodeEnvelope(resp)
			Expect(body["description"]).To(Equal("No camera was found on your device."))
		})

		It("should reject an unknown device", func() {
			resp := postJSON("/api/device-errors", map[string]string{"device": "printer", "name": "NotFoundError"})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
