package enum

type PatternKind uint8

const (
	PatternNone PatternKind = iota
	PatternSetup1
	PatternSetup2
	_pattern_end
)

func (k PatternKind) IsAvailable() bool {
	return k > PatternNone && k < _pattern_end
}

func (k PatternKind) String() string {
	switch k {
	case PatternSetup1:
		return "SETUP_1_CONSECUTIVE"
	case PatternSetup2:
		return "SETUP_2_GREEN_RED_GREEN"
	default:
		return "NONE"
	}
}

// PatternKinds lists the detectable kinds.
func PatternKinds() []PatternKind {
	return []PatternKind{PatternSetup1, PatternSetup2}
}
