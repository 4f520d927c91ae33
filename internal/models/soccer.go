package models

// PSoccer estimates the home win probability for soccer via a table:
// a lookup on (goal_diff clipped to ±4, minute bucketed to 10-minute bins), with
// values decaying toward the sign of goal_diff as minute approaches 90.
func PSoccer(s GameState) float64 {
	diff := s.GoalsHome - s.GoalsAway
	if diff > 4 {
		diff = 4
	}
	if diff < -4 {
		diff = -4
	}

	minute := s.MinuteOrPeriod
	if minute < 0 {
		minute = 0
	}
	if minute > 90 {
		minute = 90
	}
	bucket := minute / 10 // 0..9

	base := soccerBaseTable[diff+4]
	terminal := soccerTerminalTable[diff+4]

	// Linear blend from base (kickoff) to terminal (full-time) as the bucket advances.
	progress := float64(bucket) / 9.0
	p := base + (terminal-base)*progress
	return Clamp(p)
}

// soccerBaseTable holds kickoff-time win probabilities indexed by (goal_diff+4).
var soccerBaseTable = [9]float64{
	0.10, 0.18, 0.28, 0.40, 0.50, 0.60, 0.72, 0.82, 0.90,
}

// soccerTerminalTable holds near-full-time win probabilities, pinned hard toward
// the sign of goal_diff: a multi-goal lead is almost certain by minute 90.
var soccerTerminalTable = [9]float64{
	0.03, 0.04, 0.08, 0.20, 0.50, 0.80, 0.92, 0.96, 0.97,
}
