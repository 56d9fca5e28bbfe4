package bill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// BillRecord is the structured form of a bill as produced by the model.
//
// Every field is optional. The record remembers the JSON document it was
// decoded from and marshals back to it unchanged, so fields outside the
// schema survive a round trip through the API.
type BillRecord struct {
	DocumentType   *string        `json:"document_type"`
	InvoiceNumber  *string        `json:"invoice_number"`
	Date           *string        `json:"date"` // as printed on the bill
	Vendor         *Vendor        `json:"vendor"`
	Customer       *Customer      `json:"customer"`
	Items          []LineItem     `json:"items"`
	Summary        *Summary       `json:"summary"`
	AdditionalInfo map[string]any `json:"additional_info"`

	raw       json.RawMessage
	schemaErr error
}

// Vendor is the business that issued the bill
type Vendor struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
	GSTIN   *string `json:"gstin"`
}

// Customer is the billed party
type Customer struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
}

// LineItem is a single product or service. Total is not reconciled with
// Quantity * UnitPrice.
type LineItem struct {
	Description *string `json:"description"`
	Quantity    *Figure `json:"quantity"`
	UnitPrice   *Figure `json:"unit_price"`
	Total       *Figure `json:"total"`
}

// Summary holds the bill totals
type Summary struct {
	Subtotal   *Figure `json:"subtotal"`
	Tax        *Figure `json:"tax"`
	Discount   *Figure `json:"discount"`
	GrandTotal *Figure `json:"grand_total"`
	Currency   *string `json:"currency"`
}

// billFields has the same fields as BillRecord without its JSON methods
type billFields BillRecord

// UnmarshalJSON keeps the raw document and fills the typed fields on a best
// effort basis. Only syntactically invalid JSON is an error; schema mismatches
// are reported by SchemaMismatch.
func (b *BillRecord) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		var v any
		return json.Unmarshal(data, &v)
	}

	*b = BillRecord{}
	if err := json.Unmarshal(data, (*billFields)(b)); err != nil {
		b.schemaErr = err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	b.raw = compact.Bytes()
	return nil
}

// MarshalJSON returns the document the record was decoded from, or the typed
// fields for records built in code.
func (b BillRecord) MarshalJSON() ([]byte, error) {
	if len(b.raw) > 0 {
		return b.raw, nil
	}
	return json.Marshal(billFields(b))
}

// SchemaMismatch reports the first field whose JSON type did not match the
// bill schema while decoding, or nil.
func (b BillRecord) SchemaMismatch() error {
	return b.schemaErr
}

// Raw returns the JSON document the record was decoded from
func (b BillRecord) Raw() json.RawMessage {
	return b.raw
}

// VendorName returns the vendor name or an empty string
func (b BillRecord) VendorName() string {
	if b.Vendor == nil || b.Vendor.Name == nil {
		return ""
	}
	return *b.Vendor.Name
}

// dateLayouts are the date formats seen on bills, tried in order
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"01/02/2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// ParsedDate interprets Date using the common bill date formats. Day-first
// layouts win over month-first ones when both would match.
func (b BillRecord) ParsedDate() (time.Time, bool) {
	if b.Date == nil {
		return time.Time{}, false
	}
	text := strings.TrimSpace(*b.Date)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, text); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// Figure is a numeric bill value. The model may emit it as a JSON number or
// as a string such as "1,299.00" or "UNCLEAR 12.5"; the text is kept as is.
type Figure struct {
	text string
	// other JSON values (booleans, objects, arrays) are kept verbatim in text
	opaque bool
}

// NewFigure creates a Figure from its textual form
func NewFigure(text string) Figure {
	return Figure{text: text}
}

// UnmarshalJSON accepts any JSON value so that one odd figure does not abort
// decoding of the rest of the bill.
func (f *Figure) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*f = Figure{}
	switch {
	case len(data) > 0 && data[0] == '"':
		return json.Unmarshal(data, &f.text)
	case isJSONNumber(string(data)):
		f.text = string(data)
	default:
		f.text = string(data)
		f.opaque = true
	}
	return nil
}

// MarshalJSON writes numeric text as a JSON number and anything else as a string
func (f Figure) MarshalJSON() ([]byte, error) {
	if f.opaque || isJSONNumber(f.text) {
		return []byte(f.text), nil
	}
	return json.Marshal(f.text)
}

// String returns the figure as the model wrote it
func (f Figure) String() string {
	return f.text
}

// Decimal parses the figure, ignoring currency symbols, thousands separators,
// markers such as "UNCLEAR" and surrounding whitespace. The number starts at
// the first digit, or at a sign or decimal point directly before one; a point
// that ends a word such as "Rs." is not part of it.
func (f Figure) Decimal() (decimal.Decimal, error) {
	if f.opaque {
		return decimal.Zero, fmt.Errorf("figure %s is not a number", f.text)
	}
	cleaned := numericPart(f.text)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("figure %q has no digits", f.text)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing figure %q: %w", f.text, err)
	}
	return d, nil
}

// numericPart returns the first number in text with thousands separators
// removed, or "" when text has no digits
func numericPart(text string) string {
	runes := []rune(text)
	digitAt := func(i int) bool {
		return i >= 0 && i < len(runes) && runes[i] >= '0' && runes[i] <= '9'
	}
	pointAt := func(i int) bool {
		return i < len(runes) && runes[i] == '.' && digitAt(i+1) &&
			(i == 0 || !unicode.IsLetter(runes[i-1]))
	}

	start := -1
	for i := range runes {
		if digitAt(i) || pointAt(i) || (runes[i] == '-' && (digitAt(i+1) || pointAt(i+1))) {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	var b strings.Builder
	if runes[start] == '-' {
		b.WriteRune('-')
		start++
	}
	for _, r := range runes[start:] {
		if r == ',' {
			continue
		}
		if r != '.' && (r < '0' || r > '9') {
			break
		}
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), ".")
}

// Float64 returns the figure as a float and whether it could be parsed
func (f Figure) Float64() (float64, bool) {
	d, err := f.Decimal()
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

func isJSONNumber(s string) bool {
	if !json.Valid([]byte(s)) {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
