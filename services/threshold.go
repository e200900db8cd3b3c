package services

// StockThreshold maps a product's price to its low-stock alert threshold.
// Tiers: [100, 500) -> 50, [500, 1000) -> 25, everything else -> 15.
func StockThreshold(price float64) int {
	switch {
	case price >= 100 && price < 500:
		return 50
	case price >= 500 && price < 1000:
		return 25
	default:
		return 15
	}
}
