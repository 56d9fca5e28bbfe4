package prompt

// NotFoundReply is the answer the model is told to give when a question
// cannot be answered from the bill data.
const NotFoundReply = "Not found in bill."

// Template names
const (
	BillParseName = "bill_parse"
	BillChatName  = "bill_chat"
)

// BillParse instructs the model to turn raw OCR text into the bill schema.
// The field names in the output format are the BillRecord wire contract.
const BillParse = `
You are an expert bill parsing AI. Extract structured information from the provided OCR text of a bill/invoice/receipt.

**Input**: Raw OCR text extracted from a photographed bill
**Task**: Parse and extract key information into structured JSON format

**Extract the following information when available:**

## Required Fields:
- Document type (invoice/receipt/bill)
- Invoice/Receipt number
- Date
- Vendor/Business name
- Customer name (if present)
- Total amount
- Currency

## Items Information:
For each product/service:
- Description/Name
- Quantity
- Unit price
- Total price

## Financial Details:
- Subtotal
- Tax amount(s)
- Discounts
- Final total
- Payment method (if mentioned)

## Additional Fields (if available):
- Order ID
- GSTIN/Tax registration numbers
- Addresses (billing/shipping)
- Phone numbers
- Serial numbers/SKUs
- Warranty information

**Output Format:**
` + "```json" + `
{
  "document_type": "",
  "invoice_number": "",
  "date": "",
  "vendor": {
    "name": "",
    "address": "",
    "phone": "",
    "gstin": ""
  },
  "customer": {
    "name": "",
    "address": ""
  },
  "items": [
    {
      "description": "",
      "quantity": 0,
      "unit_price": 0,
      "total": 0
    }
  ],
  "summary": {
    "subtotal": 0,
    "tax": 0,
    "discount": 0,
    "grand_total": 0,
    "currency": ""
  },
  "additional_info": {}
}
` + "```" + `

**Instructions:**
1. Extract information exactly as it appears in the OCR text
2. Use null for missing information
3. Preserve original formatting for numbers and dates
4. If text is unclear, mark with "UNCLEAR" and provide best guess
5. Group related items together logically
6. Put any other useful fields into "additional_info"

Now parse the following OCR text:
{{.ocr_text}}
`

// BillChat restricts the model to answering from the supplied bill JSON.
const BillChat = `
You are an expert bill assistant. Use ONLY the following JSON bill data to answer the user's question. If the answer is not present in the data, say '` + NotFoundReply + `'

Bill JSON:
{{.bill_json}}

User question: {{.user_query}}

Answer concisely:
`

// BillParsePrompt renders BillParse for the given OCR text.
func BillParsePrompt(ocrText string) (string, error) {
	return Render(BillParseName, BillParse, map[string]any{
		"ocr_text": ocrText,
	})
}

// BillChatPrompt renders BillChat for a serialized bill and a question.
func BillChatPrompt(billJSON, question string) (string, error) {
	return Render(BillChatName, BillChat, map[string]any{
		"bill_json":  billJSON,
		"user_query": question,
	})
}
