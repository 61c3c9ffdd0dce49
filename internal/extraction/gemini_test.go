package extraction

import (
	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ResponseSchema", func() {
	It("should require the table for a table flow", func() {
		schema := ResponseSchema(Flow{Output: OutputTable})
		Expect(schema.Type).To(Equal(genai.TypeObject))
		Expect(schema.Required).To(Equal([]string{"extractedTable"}))
		Expect(schema.Properties["extractedTable"].Required).To(Equal([]string{"headers", "rows"}))
	})

	It("should require the full text alongside the table", func() {
		schema := ResponseSchema(Flow{Output: OutputTableWithText})
		Expect(schema.Required).To(Equal([]string{"extractedTable", "fullText"}))
	})

	It("should require the summary alongside the table", func() {
		schema := ResponseSchema(Flow{Output: OutputTableWithSummary})
		Expect(schema.Required).To(Equal([]string{"extractedTable", "summary"}))
	})

	It("should describe heading/value rows", func() {
		schema := ResponseSchema(Flow{Output: OutputHeadingValue})
		Expect(schema.Required).To(Equal([]string{"fullText", "table"}))
		Expect(schema.Properties["table"].Type).To(Equal(genai.TypeArray))
		Expect(schema.Properties["table"].Items.Required).To(Equal([]string{"heading", "value"}))
	})

	It("should require the answer field for a text flow", func() {
		schema := ResponseSchema(Flow{Output: OutputText, Field: "transcribedText"})
		Expect(schema.Required).To(Equal([]string{"transcribedText"}))
		Expect(schema.Properties["transcribedText"].Type).To(Equal(genai.TypeString))
	})
})

var _ = Describe("NewGemini", func() {
	It("should require an api key", func() {
		_, err := NewGemini("", "", nil)
		Expect(err).To(MatchError("gemini api key is required"))
	})
})
