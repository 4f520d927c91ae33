package models

// PNHL estimates the home win probability for hockey: logistic in
// (goal_diff, period, seconds_remaining).
func PNHL(s GameState) float64 {
	diff := float64(s.GoalsHome - s.GoalsAway)

	period := s.MinuteOrPeriod
	if period < 1 {
		period = 1
	}
	if period > 3 {
		period = 3 // treat OT/SO as terminal urgency, same as end of 3rd
	}

	remaining := s.SecondsRemaining
	if remaining < 0 {
		remaining = 0
	}
	if remaining > 1200 { // 20 minutes per period
		remaining = 1200
	}

	periodsLeft := float64(3-period) + remaining/1200.0
	urgency := 1.0 + 6.0*(1.0-periodsLeft/3.0)
	const diffCoef = 0.35

	x := diffCoef * urgency * diff
	return Clamp(sigmoid(x))
}
