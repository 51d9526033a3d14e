package fixed

func Mean(points []Point) Point {
	if len(points) == 0 {
		return Zero
	}
	sum := Zero
	for _, point := range points {
		sum = sum.Add(point)
	}
	return sum.DivInt(len(points))
}

// StdDev is the population standard deviation around mean.
func StdDev(points []Point, mean Point) Point {
	if len(points) <= 1 {
		return Zero
	}

	sum := Zero
	for _, point := range points {
		diff := point.Sub(mean)
		sum = sum.Add(diff.Mul(diff))
	}

	return sum.DivInt(len(points)).Sqrt()
}

func SharpeRatio(points []Point, riskFreeRate Point) Point {
	if len(points) == 0 {
		return Zero
	}

	mean := Mean(points)
	volatility := StdDev(points, mean)

	if volatility.IsZero() {
		return Zero
	}

	return mean.Sub(riskFreeRate).Div(volatility)
}

// MaxDrawdown returns the largest relative peak-to-trough decline, 0.25 meaning 25%.
func MaxDrawdown(points []Point) Point {
	if len(points) == 0 {
		return Zero
	}

	peak := points[0]
	maxDrawdown := Zero
	for _, point := range points {
		if point.Gt(peak) {
			peak = point
		}
		if !peak.IsPos() {
			continue
		}
		drawdown := peak.Sub(point).Div(peak)
		if drawdown.Gt(maxDrawdown) {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// Returns converts a level series into simple period-over-period returns.
func Returns(points []Point) []Point {
	if len(points) < 2 {
		return nil
	}
	returns := make([]Point, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1]
		if prev.IsZero() {
			returns = append(returns, Zero)
			continue
		}
		returns = append(returns, points[i].Div(prev).Sub(One))
	}
	return returns
}
