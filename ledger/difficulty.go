package ledger

// nextDifficulty returns the difficulty for the block that would extend
// the current tip. Retargeting happens only when the next index lands
// on a DifficultyInterval boundary: the actual time spent on the last
// interval is compared against the expected interval duration, and the
// difficulty steps up when blocks came in under half the expected time,
// steps down (floor 1) when they took over double, and is otherwise
// unchanged. Off-interval blocks inherit the tip's difficulty.
//
// Callers must hold l.mu.
func (l *Ledger) nextDifficulty() uint64 {
	tip := l.blocks[len(l.blocks)-1]
	next := tip.Index + 1

	interval := l.cfg.DifficultyInterval
	if interval == 0 || next%interval != 0 {
		return tip.Difficulty
	}

	first := l.blocks[next-interval]
	actual := tip.Timestamp - first.Timestamp
	expected := int64(interval) * int64(l.cfg.TargetBlockTime.Seconds())

	switch {
	case actual < expected/2:
		return tip.Difficulty + 1
	case actual > expected*2:
		if tip.Difficulty <= 1 {
			return 1
		}
		return tip.Difficulty - 1
	default:
		return tip.Difficulty
	}
}

// NextDifficulty exposes the retarget calculation for forging and
// tests.
func (l *Ledger) NextDifficulty() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextDifficulty()
}
