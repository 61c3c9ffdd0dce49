package capture

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/datacapture/internal/extraction"
	"github.com/zombor/datacapture/internal/media"
)

const pngDataURI = "data:image/png;base64,iVBORw0KGgo="

var _ = Describe("Dispatcher", func() {
	var (
		extractor  *mockExtractor
		dispatcher *Dispatcher
		ctx        context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		extractor = newMockExtractor()
		dispatcher = NewDispatcher(extractor)
		dispatcher.newID = func() string { return "req-1" }
	})

	Describe("HandleTextQuery", func() {
		When("the query is empty", func() {
			It("should not dispatch", func() {
				Expect(dispatcher.HandleTextQuery(ctx, "")).To(BeNil())
				Expect(extractor.calls).To(BeZero())
			})
		})

		When("the query is whitespace", func() {
			It("should not dispatch", func() {
				Expect(dispatcher.HandleTextQuery(ctx, "  \n\t")).To(BeNil())
				Expect(extractor.calls).To(BeZero())
			})
		})

		When("the query has text", func() {
			var env *Envelope

			JustBeforeEach(func() {
				env = dispatcher.HandleTextQuery(ctx, "hello")
			})

			It("should call the model exactly once", func() {
				Expect(extractor.calls).To(Equal(1))
				Expect(extractor.lastQuery).To(Equal("hello"))
			})

			It("should return the answer as text", func() {
				Expect(*env).To(Equal(Envelope{Success: true, Data: "mock answer", Type: TypeText, RequestID: "req-1"}))
			})
		})

		When("the model fails", func() {
			BeforeEach(func() {
				extractor.err = errors.New("quota exceeded")
			})

			It("should return a failure envelope", func() {
				env := dispatcher.HandleTextQuery(ctx, "hello")
				Expect(env.Success).To(BeFalse())
				Expect(env.Error).To(Equal("quota exceeded"))
				Expect(env.Type).To(BeEmpty())
				Expect(env.StatusCode()).To(Equal(502))
			})
		})
	})

	Describe("HandleImageUpload", func() {
		var (
			dataURI string
			env     Envelope
		)

		BeforeEach(func() {
			dataURI = pngDataURI
		})

		JustBeforeEach(func() {
			env = dispatcher.HandleImageUpload(ctx, dataURI)
		})

		When("the payload is an image data URI", func() {
			It("should tag the result as an image analysis", func() {
				Expect(env.Success).To(BeTrue())
				Expect(env.Type).To(Equal(TypeImageAnalysis))
				Expect(env.StatusCode()).To(Equal(200))
			})

			It("should pass the decoded image to the model", func() {
				Expect(extractor.calls).To(Equal(1))
				Expect(extractor.lastMedia.MIMEType).To(Equal("image/png"))
				Expect(extractor.lastMedia.Data).To(HavePrefix("\x89PNG"))
			})

			It("should return the normalized extraction", func() {
				x, ok := env.Data.(extraction.Extraction)
				Expect(ok).To(BeTrue())
				Expect(x.Version).To(Equal(extraction.SchemaVersion))
				Expect(x.Variant).To(Equal(extraction.VariantTableWithText))
				Expect(x.ExtractedTable.Headers).To(Equal([]string{"Order ID", "Customer"}))
				Expect(x.Pairs).NotTo(BeNil())
			})
		})

		When("the payload is not an image", func() {
			BeforeEach(func() {
				dataURI = "data:application/pdf;base64,JVBERi0="
			})

			It("should fail without calling the model", func() {
				Expect(env).To(Equal(invalid(MsgInvalidImage)))
				Expect(env.Error).To(Equal("Invalid image data URI."))
				Expect(extractor.calls).To(BeZero())
			})

			It("should map to a bad request", func() {
				Expect(env.StatusCode()).To(Equal(400))
			})
		})

		When("the payload has the prefix but cannot be decoded", func() {
			BeforeEach(func() {
				dataURI = "data:image/png;base64,%%%"
			})

			It("should fail without calling the model", func() {
				Expect(env.Success).To(BeFalse())
				Expect(env.Error).To(Equal(MsgInvalidImage))
				Expect(extractor.calls).To(BeZero())
			})
		})

		When("the model returns nothing", func() {
			BeforeEach(func() {
				extractor.extraction = nil
			})

			It("should fail with the empty response error", func() {
				Expect(env.Success).To(BeFalse())
				Expect(env.Error).To(Equal(extraction.ErrEmptyResponse.Error()))
			})
		})

		When("the model panics", func() {
			BeforeEach(func() {
				extractor.panicWith = errors.New("nil pointer in backend")
			})

			It("should recover into a failure envelope", func() {
				Expect(env.Success).To(BeFalse())
				Expect(env.Error).To(Equal("nil pointer in backend"))
				Expect(env.RequestID).To(Equal("req-1"))
			})
		})

		When("the model panics with no message", func() {
			BeforeEach(func() {
				extractor.panicWith = 42
			})

			It("should report an unknown error", func() {
				Expect(env.Error).To(Equal("An unknown error occurred"))
			})
		})

		When("the model returns an error with no message", func() {
			BeforeEach(func() {
				extractor.err = errors.New("")
			})

			It("should report an unknown error", func() {
				Expect(env.Error).To(Equal(UnknownError))
			})
		})
	})

	Describe("HandleDocumentUpload", func() {
		It("should accept any data URI", func() {
			env := dispatcher.HandleDocumentUpload(ctx, "data:text/csv;base64,YSxiCjEsMgo=")
			Expect(env.Success).To(BeTrue())
			Expect(env.Type).To(Equal(TypeDocumentAnalysis))
			Expect(extractor.lastMedia).To(Equal(media.Media{MIMEType: "text/csv", Data: []byte("a,b\n1,2\n")}))
		})

		It("should reject a plain string", func() {
			env := dispatcher.HandleDocumentUpload(ctx, "hello.pdf")
			Expect(env.Error).To(Equal("Invalid document data URI."))
			Expect(extractor.calls).To(BeZero())
		})
	})

	Describe("HandleHandwritingTranscription", func() {
		It("should return the transcription", func() {
			extractor.text = "Buy eggs"
			env := dispatcher.HandleHandwritingTranscription(ctx, pngDataURI)
			Expect(env).To(Equal(Envelope{Success: true, Data: "Buy eggs", Type: TypeHandwritingTranscription, RequestID: "req-1"}))
		})

		It("should reject a non-image payload", func() {
			env := dispatcher.HandleHandwritingTranscription(ctx, "data:text/plain,hello")
			Expect(env.Error).To(Equal("Invalid image data URI for handwriting transcription."))
			Expect(extractor.calls).To(BeZero())
		})
	})

	Describe("HandleTableImport", func() {
		It("should adapt a heading/value answer", func() {
			env := dispatcher.HandleTableImport(`[{"heading": "Total", "value": 42}]`)
			Expect(env.Success).To(BeTrue())
			Expect(env.Type).To(Equal(TypeTable))
			x := env.Data.(extraction.Extraction)
			Expect(x.ExtractedTable.Rows).To(Equal([][]string{{"Total", "42"}}))
			Expect(extractor.calls).To(BeZero())
		})

		It("should reject an empty body", func() {
			env := dispatcher.HandleTableImport(" ")
			Expect(env.Error).To(Equal(MsgNoTableData))
			Expect(env.StatusCode()).To(Equal(400))
		})

		It("should reject text that is not a table", func() {
			env := dispatcher.HandleTableImport("just words")
			Expect(env.Success).To(BeFalse())
			Expect(env.Error).To(HavePrefix("Could not read table data"))
		})
	})
})
