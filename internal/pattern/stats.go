package pattern

import (
	"renkotrader/internal/model/enum"
)

// Stats counts resolved trades per pattern kind. Reporting only.
type Stats struct {
	Attempts  int
	Successes int
}

func (s Stats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// RecordOutcome counts a resolved trade for kind.
func (d *Detector) RecordOutcome(kind enum.PatternKind, success bool) {
	if !kind.IsAvailable() {
		return
	}
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	s, ok := d.stats[kind]
	if !ok {
		s = &Stats{}
		d.stats[kind] = s
	}
	s.Attempts++
	if success {
		s.Successes++
	}
}

func (d *Detector) Stats(kind enum.PatternKind) Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	if s, ok := d.stats[kind]; ok {
		return *s
	}
	return Stats{}
}

func (d *Detector) SuccessRate(kind enum.PatternKind) float64 {
	return d.Stats(kind).SuccessRate()
}

func (d *Detector) Attempts(kind enum.PatternKind) int {
	return d.Stats(kind).Attempts
}

// AllStats copies the counters of every kind seen so far.
func (d *Detector) AllStats() map[enum.PatternKind]Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	out := make(map[enum.PatternKind]Stats, len(d.stats))
	for k, s := range d.stats {
		out[k] = *s
	}
	return out
}
