package indicators

// SwingPoint is a local low of a price series.
type SwingPoint struct {
	Index int
	Price float64
}

// SwingLows returns the indices of lows that are strictly below the radius
// values on each side. The first and last radius values cannot qualify.
func SwingLows(lows []float64, radius int) []SwingPoint {
	var swings []SwingPoint
	for i := radius; i < len(lows)-radius; i++ {
		isSwingLow := true
		for j := 1; j <= radius; j++ {
			if lows[i] >= lows[i-j] || lows[i] >= lows[i+j] {
				isSwingLow = false
				break
			}
		}
		if isSwingLow {
			swings = append(swings, SwingPoint{Index: i, Price: lows[i]})
		}
	}
	return swings
}
