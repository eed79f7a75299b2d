package engine

import "knowtrace/internal/types"

// Band holds the base BKT parameters for one difficulty band.
type Band struct {
	Name    types.DifficultyBand
	Prior   float64
	Transit float64
	Slip    float64
	Guess   float64
}

// bandFor selects the base parameter band by question difficulty.
func bandFor(difficulty float64) Band {
	switch {
	case difficulty < 0.4:
		return Band{types.BandFoundation, 0.05, 0.40, 0.10, 0.30}
	case difficulty < 0.6:
		return Band{types.BandBuilding, 0.08, 0.30, 0.15, 0.25}
	case difficulty < 0.7:
		return Band{types.BandIntermediate, 0.10, 0.25, 0.20, 0.20}
	default:
		return Band{types.BandAdvanced, 0.15, 0.20, 0.25, 0.15}
	}
}

// bandOrder gives each band a rank for stepping up or down.
var bandOrder = []types.DifficultyBand{
	types.BandFoundation,
	types.BandBuilding,
	types.BandIntermediate,
	types.BandAdvanced,
}

func bandRank(b types.DifficultyBand) int {
	for i, name := range bandOrder {
		if name == b {
			return i
		}
	}
	return 0
}

func bandAt(rank int) types.DifficultyBand {
	if rank < 0 {
		rank = 0
	}
	if rank >= len(bandOrder) {
		rank = len(bandOrder) - 1
	}
	return bandOrder[rank]
}

// recommendBand picks the next difficulty band from mastery, the learner's
// accuracy state, readiness, and the recent streak. Ready learners are not
// held at the remedial floor; struggling learners step down; a mastering
// learner with a clean streak steps up.
func recommendBand(mastery float64, state types.LearnerState, ready bool, lastFiveCorrect int) types.DifficultyBand {
	var base types.DifficultyBand
	switch {
	case mastery < 0.3:
		base = types.BandFoundation
	case mastery < 0.6:
		base = types.BandBuilding
	case mastery < 0.8:
		base = types.BandIntermediate
	default:
		base = types.BandAdvanced
	}

	rank := bandRank(base)
	if ready && rank == 0 {
		rank = 1
	}
	switch state {
	case types.StateStruggling, types.StateRecovery:
		rank--
	case types.StateMastering:
		if lastFiveCorrect >= 4 {
			rank++
		}
	}
	return bandAt(rank)
}
