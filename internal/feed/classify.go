package feed

import "github.com/sawpanic/sportsedge/internal/models"

type classified struct {
	kind       Kind
	pointValue int
}

// classifyDelta maps a (prev, new) state pair to zero or more ScoreEvent
// kinds. Negative deltas (any scoring atom decreasing) are always
// score_correction, which downstream consumers ignore for trading but which
// is still persisted.
func classifyDelta(sport models.Sport, prev, next models.GameState) []classified {
	switch sport {
	case models.Soccer:
		return classifySoccer(prev, next)
	case models.NFL:
		return classifyNFL(prev, next)
	case models.NBA:
		return classifyNBA(prev, next)
	case models.MLB:
		return classifyMLB(prev, next)
	case models.NHL:
		return classifyNHL(prev, next)
	case models.Tennis:
		return classifyTennis(prev, next)
	default:
		return nil
	}
}

func classifySoccer(prev, next models.GameState) []classified {
	var out []classified
	if next.GoalsHome < prev.GoalsHome || next.GoalsAway < prev.GoalsAway {
		out = append(out, classified{kind: KindScoreCorrection})
		return out
	}
	for i := 0; i < next.GoalsHome-prev.GoalsHome; i++ {
		out = append(out, classified{kind: KindGoalHome})
	}
	for i := 0; i < next.GoalsAway-prev.GoalsAway; i++ {
		out = append(out, classified{kind: KindGoalAway})
	}
	return out
}

func classifyNHL(prev, next models.GameState) []classified {
	var out []classified
	if next.GoalsHome < prev.GoalsHome || next.GoalsAway < prev.GoalsAway {
		out = append(out, classified{kind: KindScoreCorrection})
		return out
	}
	for i := 0; i < next.GoalsHome-prev.GoalsHome; i++ {
		out = append(out, classified{kind: KindGoalHome})
	}
	for i := 0; i < next.GoalsAway-prev.GoalsAway; i++ {
		out = append(out, classified{kind: KindGoalAway})
	}
	return out
}

// classifyNFL classifies the exact delta magnitudes into the scoring atoms
// of football scoring: delta of 7 -> touchdown with extra point, 6 -> without
// (both reported as touchdown_<side> with PointValue set), 3 -> field_goal.
func classifyNFL(prev, next models.GameState) []classified {
	homeDelta := next.ScoreHome - prev.ScoreHome
	awayDelta := next.ScoreAway - prev.ScoreAway

	if homeDelta < 0 || awayDelta < 0 {
		return []classified{{kind: KindScoreCorrection}}
	}

	var out []classified
	if c, ok := classifyNFLDelta(homeDelta, KindTouchdownHome, KindFieldGoalHome); ok {
		out = append(out, c)
	}
	if c, ok := classifyNFLDelta(awayDelta, KindTouchdownAway, KindFieldGoalAway); ok {
		out = append(out, c)
	}
	return out
}

func classifyNFLDelta(delta int, touchdownKind, fieldGoalKind Kind) (classified, bool) {
	switch delta {
	case 7, 6:
		return classified{kind: touchdownKind, pointValue: delta}, true
	case 3:
		return classified{kind: fieldGoalKind, pointValue: 3}, true
	case 2:
		return classified{kind: fieldGoalKind, pointValue: 2}, true // safety, grouped with low-value kicks
	case 0:
		return classified{}, false
	default:
		// Unrecognized combined-play delta (e.g. two scores merged by a slow
		// poll); still surface it as a touchdown-class event so the model
		// reacts, but without a canonical point value.
		return classified{kind: touchdownKind, pointValue: delta}, true
	}
}

func classifyNBA(prev, next models.GameState) []classified {
	homeDelta := next.ScoreHome - prev.ScoreHome
	awayDelta := next.ScoreAway - prev.ScoreAway

	if homeDelta < 0 || awayDelta < 0 {
		return []classified{{kind: KindScoreCorrection}}
	}

	var out []classified
	if homeDelta > 0 {
		out = append(out, classified{kind: KindBasketHome, pointValue: homeDelta})
	}
	if awayDelta > 0 {
		out = append(out, classified{kind: KindBasketAway, pointValue: awayDelta})
	}
	return out
}

func classifyMLB(prev, next models.GameState) []classified {
	homeDelta := next.RunsHome - prev.RunsHome
	awayDelta := next.RunsAway - prev.RunsAway

	if homeDelta < 0 || awayDelta < 0 {
		return []classified{{kind: KindScoreCorrection}}
	}

	var out []classified
	for i := 0; i < homeDelta; i++ {
		out = append(out, classified{kind: KindRunHome})
	}
	for i := 0; i < awayDelta; i++ {
		out = append(out, classified{kind: KindRunAway})
	}
	return out
}

// classifyTennis reports set wins first: when a set completes, the current-set
// game counters reset, so game deltas are only meaningful while the set count
// is unchanged.
func classifyTennis(prev, next models.GameState) []classified {
	setsHomeDelta := next.SetsWonHome - prev.SetsWonHome
	setsAwayDelta := next.SetsWonAway - prev.SetsWonAway

	if setsHomeDelta < 0 || setsAwayDelta < 0 {
		return []classified{{kind: KindScoreCorrection}}
	}

	var out []classified
	for i := 0; i < setsHomeDelta; i++ {
		out = append(out, classified{kind: KindSetWonHome})
	}
	for i := 0; i < setsAwayDelta; i++ {
		out = append(out, classified{kind: KindSetWonAway})
	}
	if len(out) > 0 {
		return out
	}

	gamesHomeDelta := next.GamesHomeCurrentSet - prev.GamesHomeCurrentSet
	gamesAwayDelta := next.GamesAwayCurrentSet - prev.GamesAwayCurrentSet

	if gamesHomeDelta < 0 || gamesAwayDelta < 0 {
		return []classified{{kind: KindScoreCorrection}}
	}

	for i := 0; i < gamesHomeDelta; i++ {
		out = append(out, classified{kind: KindGameWonHome})
	}
	for i := 0; i < gamesAwayDelta; i++ {
		out = append(out, classified{kind: KindGameWonAway})
	}
	return out
}
