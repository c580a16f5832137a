package scanning

import "strings"

// DefaultCategory is used when the model's category is missing or not in Categories
const DefaultCategory = "Other"

// Categories is the default category set every user is provisioned with
var Categories = []string{
	"Groceries",
	"Dining",
	"Transportation",
	"Shopping",
	"Healthcare",
	"Entertainment",
	"Utilities",
	"Travel",
	"Gas",
	DefaultCategory,
}

// ReceiptPrompt is the shared prompt sent to every extraction backend
const ReceiptPrompt = `You are reading a photographed receipt. Your most important job is to extract the TOTAL AMOUNT accurately.

1. **Total**: Look for "TOTAL", "Grand Total", "Net Total", "Amount Payable", "Amount Due" or "Bill Amount". The total is usually the last or bottom-most amount and often the largest number on the receipt.

2. **Currency**: Return plain numbers only. If you see "₹500", "Rs. 500" or "$500" next to the total, use 500.

3. **Arithmetic**: If the subtotal is 450 and the tax is 50, the total MUST be 500. The total is never smaller than the subtotal. Round all amounts to 2 decimal places.

4. **Store and date**: The store name is usually at the top of the receipt. Convert the date to YYYY-MM-DD.

5. **Category**: Match the store to exactly one of these categories:
- Groceries: supermarkets, grocery and vegetable shops
- Dining: restaurants, cafes, food delivery
- Transportation: metro, taxi, ride sharing, parking
- Shopping: clothing, electronics, online marketplaces, malls
- Healthcare: pharmacies, medical stores, hospitals
- Entertainment: movies, games, events
- Utilities: phone, electricity and internet bills
- Travel: hotels, flights, train tickets
- Gas: vehicle fuel only
- Other: anything else

Return ONLY valid JSON in this exact format:
{
  "store_name": "store name from top of receipt",
  "date": "YYYY-MM-DD",
  "items": [{"description": "item name", "quantity": 1, "price": 0.00}],
  "subtotal": 0.00,
  "tax": 0.00,
  "total": 0.00,
  "category": "Other"
}

Example: a receipt showing "Big Bazaar" at the top and "TOTAL: Rs. 1,234" at the bottom returns
{"store_name": "Big Bazaar", "total": 1234.00, "category": "Groceries", ...}

Important:
- Use null for any field you cannot find
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// NormalizeCategory maps a model-supplied category onto Categories, case-insensitively
func NormalizeCategory(name string) string {
	name = strings.TrimSpace(name)
	for _, category := range Categories {
		if strings.EqualFold(category, name) {
			return category
		}
	}
	return DefaultCategory
}
