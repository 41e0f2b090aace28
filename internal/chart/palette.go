package chart

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	// hueStart and hueBudget spread series colors over 300 of the 360 degrees
	// so the first and last series never land on the same hue.
	hueStart   = 200.0
	hueBudget  = 300.0
	saturation = 0.70
	lightness  = 0.55
)

// Color returns the hex color for series index of count. The result depends
// only on (index, count).
func Color(index, count int) string {
	if count <= 0 {
		count = 1
	}
	if index < 0 {
		index = 0
	}
	hue := math.Mod(hueStart+hueBudget*float64(index)/float64(count), 360)
	return colorful.Hsl(hue, saturation, lightness).Hex()
}
