package scanning

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// LineItem is a single purchased item read off a receipt
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
}

// Candidate is the structure recovered from a model response before it is trusted.
// Optional amounts are nil when the model did not supply a usable value.
type Candidate struct {
	StoreName string     `json:"store_name,omitempty"`
	Date      string     `json:"date,omitempty"`
	Items     []LineItem `json:"items"`
	Subtotal  *float64   `json:"subtotal"`
	Tax       *float64   `json:"tax"`
	Total     *float64   `json:"total"`
	Category  string     `json:"category,omitempty"`
}

// numberPattern finds the first number in strings like "Rs. 1,234.50" or "$12"
var numberPattern = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// UnmarshalJSON decodes model output leniently. Values of the wrong shape are
// dropped instead of failing the whole object.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var raw struct {
		StoreName json.RawMessage `json:"store_name"`
		Date      json.RawMessage `json:"date"`
		Items     json.RawMessage `json:"items"`
		Subtotal  json.RawMessage `json:"subtotal"`
		Tax       json.RawMessage `json:"tax"`
		Total     json.RawMessage `json:"total"`
		Category  json.RawMessage `json:"category"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Candidate{
		StoreName: decodeString(raw.StoreName),
		Date:      decodeString(raw.Date),
		Items:     decodeItems(raw.Items),
		Subtotal:  decodeNumber(raw.Subtotal),
		Tax:       decodeNumber(raw.Tax),
		Total:     decodeNumber(raw.Total),
		Category:  decodeString(raw.Category),
	}
	return nil
}

// decodeItems keeps only the elements that are JSON objects
func decodeItems(raw json.RawMessage) []LineItem {
	items := []LineItem{}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return items
	}

	for _, element := range elements {
		var fields struct {
			Description json.RawMessage `json:"description"`
			Name        json.RawMessage `json:"name"`
			Quantity    json.RawMessage `json:"quantity"`
			Price       json.RawMessage `json:"price"`
		}
		if err := json.Unmarshal(element, &fields); err != nil || isNull(element) {
			continue
		}

		item := LineItem{
			Description: decodeString(fields.Description),
			Quantity:    1,
		}
		if item.Description == "" {
			item.Description = decodeString(fields.Name)
		}
		if quantity := decodeNumber(fields.Quantity); quantity != nil {
			item.Quantity = *quantity
		}
		if price := decodeNumber(fields.Price); price != nil {
			item.Price = *price
		}
		items = append(items, item)
	}

	return items
}

// decodeNumber reads a JSON number or a numeric string, returning nil when neither fits
func decodeNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 || isNull(raw) {
		return nil
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return finite(number)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil
	}
	match := numberPattern.FindString(text)
	if match == "" {
		return nil
	}
	number, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return nil
	}
	return finite(number)
}

// decodeString returns the trimmed string value, or "" for anything else
func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func finite(number float64) *float64 {
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return nil
	}
	return &number
}
