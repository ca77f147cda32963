package stage

// Ladder is the explicit finite-state value behind a staged cache. The zero
// Ladder is at Empty.
//
// A Ladder is not safe for concurrent use.
type Ladder struct {
	// realized counts the current stages; the highest is realized-1.
	realized   int
	recomputes [Count]int
}

// Current returns the highest stage currently realized.
func (l *Ladder) Current() Stage { return Stage(l.realized - 1) }

// Realize runs compute for stage s if s is not already current. It fails with
// a stage error when s-1 is not current. When compute fails the ladder stays
// at s-1 and the error is returned unchanged.
func (l *Ladder) Realize(s Stage, compute func() error) error {
	if !s.Valid() {
		return ErrInvalidStage
	}
	cur := l.Current()
	if cur >= s {
		return nil
	}
	if cur < s.Prev() {
		return &Error{Op: "realize " + s.String(), Have: cur, Need: s.Prev()}
	}
	l.recomputes[s]++
	if compute != nil {
		if err := compute(); err != nil {
			return err
		}
	}
	l.realized = int(s) + 1
	return nil
}

// Invalidate marks s and every later stage stale. Stages below s are
// untouched.
func (l *Ladder) Invalidate(s Stage) {
	if !s.Valid() {
		return
	}
	if l.Current() >= s {
		l.realized = int(s)
	}
}

// Require returns a stage error naming op when s is not current.
func (l *Ladder) Require(op string, s Stage) error {
	if cur := l.Current(); cur < s {
		return &Error{Op: op, Have: cur, Need: s}
	}
	return nil
}

// Recomputes returns how many times stage s has actually been computed.
func (l *Ladder) Recomputes(s Stage) int {
	if !s.Valid() {
		return 0
	}
	return l.recomputes[s]
}

// ResetCounters zeroes the recompute counters.
func (l *Ladder) ResetCounters() {
	l.recomputes = [Count]int{}
}
