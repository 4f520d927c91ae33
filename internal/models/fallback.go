package models

// PFallback is the catch-all model: logistic in score_diff
// alone, with a shallow slope. Used for any sport tag the dispatch table in
// ForSport does not recognize.
func PFallback(s GameState) float64 {
	diff := float64(s.ScoreHome - s.ScoreAway)
	if diff == 0 {
		diff = float64(s.GoalsHome - s.GoalsAway)
	}
	if diff == 0 {
		diff = float64(s.RunsHome - s.RunsAway)
	}
	const shallowSlope = 0.15
	return Clamp(sigmoid(shallowSlope * diff))
}
