package flow

// ScrollTracker counts downward-to-upward scroll reversals as reread signals.
//
// The count approximates re-reading; it is a behavioral contract, not ground
// truth. One continuous upward gesture counts once. Reversals that happen
// between two samples are missed, so fast up/down movement undercounts.
type ScrollTracker struct {
	lastPosition float64
	upCount      int
	scrollingUp  bool
}

// OnScroll consumes the current scroll position.
func (s *ScrollTracker) OnScroll(position float64) {
	switch {
	case position < s.lastPosition:
		if !s.scrollingUp {
			s.upCount++
			s.scrollingUp = true
		}
	case position > s.lastPosition:
		s.scrollingUp = false
	}
	s.lastPosition = position
}

// Reset scopes counting to a new segment. The last observed position is kept
// as the reference for the next event.
func (s *ScrollTracker) Reset() {
	s.upCount = 0
	s.scrollingUp = false
}

// UpCount returns the reversals seen since the last reset.
func (s *ScrollTracker) UpCount() int {
	return s.upCount
}

// ScrollingUp reports whether the current gesture is upward.
func (s *ScrollTracker) ScrollingUp() bool {
	return s.scrollingUp
}

// LastPosition returns the last observed position.
func (s *ScrollTracker) LastPosition() float64 {
	return s.lastPosition
}
