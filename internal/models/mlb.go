package models

// PMLB estimates the home win probability for baseball: logistic in
// (run_diff, inning_half_index, outs), adjusted for the batting team.
func PMLB(s GameState) float64 {
	diff := float64(s.RunsHome - s.RunsAway)

	halfIdx := s.InningHalfIndex
	if halfIdx < 0 {
		halfIdx = 0
	}
	if halfIdx > 17 { // 9 innings * 2 halves, clamp beyond extras
		halfIdx = 17
	}
	progress := float64(halfIdx) / 17.0

	outs := s.Outs
	if outs < 0 {
		outs = 0
	}
	if outs > 2 {
		outs = 2
	}

	urgency := 1.0 + 4.0*progress
	const diffCoef = 0.25
	const outsCoef = 0.05

	x := diffCoef * urgency * diff

	// Batting team gets a small live-inning bump that shrinks the further into
	// the half-inning (more outs recorded) they are.
	battingBump := outsCoef * (3.0 - float64(outs))
	if s.BattingIsHome {
		x += battingBump
	} else {
		x -= battingBump
	}

	return Clamp(sigmoid(x))
}
