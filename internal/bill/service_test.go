package bill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-assistant/internal/llm"
	"github.com/zombor/bill-assistant/internal/prompt"
)

const acmeReply = "```json\n" +
	`{"document_type":"receipt","invoice_number":null,"date":"2024-01-01","vendor":{"name":"Acme Store"},"items":[],"summary":{"grand_total":12.50,"currency":"USD"}}` +
	"\n```"

var _ = Describe("Service", func() {
	var (
		generator *mockGenerator
		service   *Service
		ctx       context.Context
	)

	BeforeEach(func() {
		generator = newMockGenerator(acmeReply)
		service = NewService(generator)
		ctx = context.Background()
	})

	Describe("Structure", func() {
		var (
			ocrText string
			result  *ExtractionResult
			err     error
		)

		BeforeEach(func() {
			ocrText = "Acme Store\nTotal: $12.50\n2024-01-01"
		})

		JustBeforeEach(func() {
			result, err = service.Structure(ctx, ocrText)
		})

		When("the model returns a fenced bill", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("parses the vendor name", func() {
				Expect(result.Parsed).NotTo(BeNil())
				Expect(*result.Parsed.Vendor.Name).To(Equal("Acme Store"))
			})

			It("parses the grand total", func() {
				total, ok := result.Parsed.Summary.GrandTotal.Float64()
				Expect(ok).To(BeTrue())
				Expect(total).To(Equal(12.50))
			})

			It("keeps the raw reply", func() {
				Expect(result.RawText).To(Equal(acmeReply))
				Expect(result.Err).NotTo(HaveOccurred())
			})

			It("sends the parse prompt with the OCR text", func() {
				Expect(generator.calls()).To(Equal(1))
				expected, err := prompt.BillParsePrompt(ocrText)
				Expect(err).NotTo(HaveOccurred())
				Expect(generator.lastPrompt()).To(Equal(expected))
			})
		})

		When("the model returns prose without braces", func() {
			BeforeEach(func() {
				generator.response = "I'm sorry, the text is too blurry to read."
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns the raw text with no parsed bill", func() {
				Expect(result.RawText).To(Equal("I'm sorry, the text is too blurry to read."))
				Expect(result.Parsed).To(BeNil())
				Expect(IsNoJSONFound(result.Err)).To(BeTrue())
			})

			It("serializes parsed as null", func() {
				out, err := json.Marshal(result)
				Expect(err).NotTo(HaveOccurred())
				Expect(out).To(MatchJSON(`{"raw_response": "I'm sorry, the text is too blurry to read.", "parsed": null}`))
			})
		})

		When("the model returns a fenced null", func() {
			BeforeEach(func() {
				generator.response = "```json\nnull\n```"
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns no parsed bill", func() {
				Expect(result.Parsed).To(BeNil())
				Expect(result.Err).NotTo(HaveOccurred())
			})

			It("serializes parsed as null", func() {
				out, err := json.Marshal(result)
				Expect(err).NotTo(HaveOccurred())
				Expect(out).To(MatchJSON(`{"raw_response": "` + "```json\\nnull\\n```" + `", "parsed": null}`))
			})
		})

		When("the model returns malformed JSON", func() {
			BeforeEach(func() {
				generator.response = `Here: {"vendor": {"name": "Acme"`
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns the raw text with no parsed bill", func() {
				Expect(result.RawText).To(Equal(generator.response))
				Expect(result.Parsed).To(BeNil())
			})
		})

		When("the model returns broken JSON between braces", func() {
			BeforeEach(func() {
				generator.response = `Here: {"vendor": {"name": "Acme",}}`
			})

			It("keeps the candidate for diagnosis", func() {
				Expect(err).NotTo(HaveOccurred())
				var extractErr *ExtractionError
				Expect(errors.As(result.Err, &extractErr)).To(BeTrue())
				Expect(extractErr.Candidate).To(Equal(`{"vendor": {"name": "Acme",}}`))
			})
		})

		When("the model is unavailable", func() {
			BeforeEach(func() {
				generator.err = fmt.Errorf("%w: connection refused", llm.ErrUpstreamUnavailable)
			})

			It("returns an upstream error", func() {
				Expect(errors.Is(err, llm.ErrUpstreamUnavailable)).To(BeTrue())
				Expect(result).To(BeNil())
			})
		})

		When("the same text is submitted twice", func() {
			It("calls the model each time", func() {
				_, err := service.Structure(ctx, ocrText)
				Expect(err).NotTo(HaveOccurred())
				Expect(generator.calls()).To(Equal(2))
			})
		})
	})

	Describe("Answer", func() {
		var (
			record   BillRecord
			question string
			answer   string
			err      error
		)

		BeforeEach(func() {
			Expect(json.Unmarshal([]byte(`{"vendor":{"name":"Acme Store"},"summary":{"grand_total":12.50,"currency":"USD"}}`), &record)).To(Succeed())
			question = "What was the total amount?"
			generator.response = "  The total was 12.50 USD.\n"
		})

		JustBeforeEach(func() {
			answer, err = service.Answer(ctx, record, question)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the trimmed answer", func() {
			Expect(answer).To(Equal("The total was 12.50 USD."))
		})

		It("embeds the question exactly once", func() {
			Expect(strings.Count(generator.lastPrompt(), question)).To(Equal(1))
		})

		It("embeds the serialized record exactly once", func() {
			serialized, err := json.MarshalIndent(record, "", "  ")
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Count(generator.lastPrompt(), string(serialized))).To(Equal(1))
			Expect(string(serialized)).To(ContainSubstring(`"grand_total": 12.50`))
		})

		It("instructs the model to stay within the bill", func() {
			Expect(generator.lastPrompt()).To(ContainSubstring(prompt.NotFoundReply))
		})

		It("does not modify the record", func() {
			Expect(string(record.Raw())).To(Equal(`{"vendor":{"name":"Acme Store"},"summary":{"grand_total":12.50,"currency":"USD"}}`))
		})

		When("the model is unavailable", func() {
			BeforeEach(func() {
				generator.err = fmt.Errorf("%w: status 503", llm.ErrUpstreamUnavailable)
			})

			It("returns an upstream error and no answer", func() {
				Expect(errors.Is(err, llm.ErrUpstreamUnavailable)).To(BeTrue())
				Expect(answer).To(BeEmpty())
			})
		})

		When("the question contains template syntax", func() {
			BeforeEach(func() {
				question = "What is {{.bill_json}}?"
			})

			It("inserts it literally", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(generator.lastPrompt()).To(ContainSubstring("User question: What is {{.bill_json}}?"))
			})
		})
	})
})
