package logger

import (
	"strconv"
	"strings"
	"sync"
)

// eventSampler lets through numerator out of every denominator occurrences,
// counting each event name separately so a chatty event cannot starve a rare one.
type eventSampler struct {
	mu          sync.Mutex
	numerator   int
	denominator int
	seen        map[string]int
}

func newEventSampler(numerator, denominator int) *eventSampler {
	s := &eventSampler{}
	s.Set(numerator, denominator)
	return s
}

// Set replaces the ratio and resets all counters. A non-positive side disables sampling.
func (s *eventSampler) Set(numerator, denominator int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if numerator <= 0 || denominator <= 0 {
		numerator, denominator = 0, 0
	}
	s.numerator = min(numerator, denominator)
	s.denominator = denominator
	s.seen = make(map[string]int)
}

// Allow reports whether this occurrence of event should be logged.
// The first occurrence of every event always passes.
func (s *eventSampler) Allow(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denominator == 0 {
		return true
	}
	n := s.seen[event] % s.denominator
	s.seen[event] = n + 1
	return n < s.numerator
}

// parseRatio accepts "n/d" or a plain "d" meaning 1/d.
func parseRatio(raw string) (int, int) {
	raw = strings.TrimSpace(raw)
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 != nil || err2 != nil {
			return 0, 0
		}
		return n, d
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return 1, v
	}
	return 0, 0
}
