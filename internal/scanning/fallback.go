package scanning

import "time"

const (
	// DateLayout is the ISO date format candidates carry
	DateLayout = "2006-01-02"

	FallbackStoreName    = "Receipt Upload"
	ManualEntryStoreName = "Manual Entry"
)

// SynthesizeFallback builds the placeholder stored when no model produced a usable candidate
func SynthesizeFallback(now time.Time) Candidate {
	return synthesize(FallbackStoreName, "Receipt item", NominalAmount, now)
}

// SynthesizeManualEntry builds the minimal record written after the pipeline itself failed
func SynthesizeManualEntry(now time.Time) Candidate {
	return synthesize(ManualEntryStoreName, "Receipt uploaded - please edit details", ManualEntryAmount, now)
}

func synthesize(store, description string, amount float64, now time.Time) Candidate {
	subtotal, tax, total := amount, 0.0, amount
	return Candidate{
		StoreName: store,
		Date:      now.Format(DateLayout),
		Items:     []LineItem{{Description: description, Quantity: 1, Price: amount}},
		Subtotal:  &subtotal,
		Tax:       &tax,
		Total:     &total,
		Category:  DefaultCategory,
	}
}
