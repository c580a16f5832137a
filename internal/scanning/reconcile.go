package scanning

import (
	"log/slog"
	"math"

	"github.com/shopspring/decimal"
)

const (
	// NominalAmount is stored when no usable amount can be read from a receipt
	NominalAmount = 10.00
	// ManualEntryAmount is stored by the last-resort write after a pipeline failure
	ManualEntryAmount = 5.00

	divergenceRatio     = 0.10
	divergenceTolerance = 0.01
)

// TotalSource says where a reconciled total came from
type TotalSource string

const (
	SourceExtracted TotalSource = "extracted"
	SourceItems     TotalSource = "items"
	SourceSubtotal  TotalSource = "subtotal"
	SourceNominal   TotalSource = "nominal"
)

// Reconciliation is a candidate whose total is guaranteed finite and positive
type Reconciliation struct {
	Candidate   Candidate
	Source      TotalSource
	ItemsTotal  float64
	Divergent   bool
	NeedsReview bool
}

// Reconcile repairs the candidate's total against its line items.
// A positive printed total is always kept; otherwise the total is rebuilt from
// the items, then the subtotal, then the nominal amount.
func Reconcile(c Candidate) Reconciliation {
	c = sanitize(c)
	itemsTotal := sumItems(c.Items)

	r := Reconciliation{}
	if sum := itemsTotal.Round(2).InexactFloat64(); isFinite(sum) {
		r.ItemsTotal = sum
	}

	switch {
	case isPositive(c.Total):
		r.Source = SourceExtracted
		if len(c.Items) > 0 && diverges(itemsTotal, *c.Total) {
			r.Divergent = true
			slog.Warn("Extracted total does not match line items",
				"total", *c.Total,
				"items_total", r.ItemsTotal,
				"store", c.StoreName)
		}
	case len(c.Items) > 0:
		tax := decimal.Zero
		if c.Tax != nil && *c.Tax > 0 {
			tax = decimal.NewFromFloat(*c.Tax)
		}
		subtotal := itemsTotal.Round(2).InexactFloat64()
		total := itemsTotal.Add(tax).Round(2).InexactFloat64()
		c.Subtotal = finitePtr(&subtotal)
		c.Total = &total
		r.Source = SourceItems
	case isPositive(c.Subtotal):
		total := *c.Subtotal
		c.Total = &total
		r.Source = SourceSubtotal
	default:
		total := NominalAmount
		c.Total = &total
		r.Source = SourceNominal
		r.NeedsReview = true
	}

	if !isPositive(c.Total) {
		total := NominalAmount
		c.Total = &total
		r.Source = SourceNominal
		r.NeedsReview = true
	}

	r.Candidate = c
	return r
}

// sanitize copies the candidate, dropping values that can't be serialized as JSON
func sanitize(c Candidate) Candidate {
	c.Subtotal = finitePtr(c.Subtotal)
	c.Tax = finitePtr(c.Tax)
	c.Total = finitePtr(c.Total)

	items := make([]LineItem, len(c.Items))
	for i, item := range c.Items {
		if !isFinite(item.Price) {
			item.Price = 0
		}
		if !isFinite(item.Quantity) {
			item.Quantity = 1
		}
		items[i] = item
	}
	c.Items = items

	return c
}

// sumItems adds price times quantity, counting every item at least once
func sumItems(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		if item.Price <= 0 {
			continue
		}
		quantity := math.Max(item.Quantity, 1)
		sum = sum.Add(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromFloat(quantity)))
	}
	return sum
}

func diverges(itemsTotal decimal.Decimal, total float64) bool {
	diff := itemsTotal.Sub(decimal.NewFromFloat(total)).Abs()
	return diff.GreaterThan(decimal.NewFromFloat(divergenceTolerance)) &&
		diff.GreaterThan(decimal.NewFromFloat(total*divergenceRatio))
}

func isPositive(value *float64) bool {
	return value != nil && isFinite(*value) && *value > 0
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

func finitePtr(value *float64) *float64 {
	if value == nil || !isFinite(*value) {
		return nil
	}
	v := *value
	return &v
}
