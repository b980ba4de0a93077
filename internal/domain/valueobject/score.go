package valueobject

import "math"

// ClampScore ограничивает оценку диапазоном [0,100]. NaN считается нулем.
func ClampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Percent returns part/total*100 clamped to [0,100]; zero total yields 0.
func Percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return ClampScore(float64(part) / float64(total) * 100)
}
