package sale

// Stage is one of the four temporal phases of the sale. The constants follow
// the chronological sequence of the sale.
type Stage uint8

const (
	StageComingSoon Stage = iota
	StageOnlyKyc
	StageTokenPurchase
	StageCompleted
)

// stageOrder is the explicit chronology used for phase comparisons. Stage
// checks consult this table rather than the numeric constant values so the
// comparison semantics can never drift from the documented sequence.
var stageOrder = map[Stage]int{
	StageComingSoon:    0,
	StageOnlyKyc:       1,
	StageTokenPurchase: 2,
	StageCompleted:     3,
}

func (s Stage) String() string {
	switch s {
	case StageComingSoon:
		return "coming_soon"
	case StageOnlyKyc:
		return "only_kyc"
	case StageTokenPurchase:
		return "token_purchase"
	case StageCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Valid reports whether the stage value is within the supported range.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// AtLeast reports whether the stage sits at or after min in the sale
// chronology.
func (s Stage) AtLeast(min Stage) bool {
	a, okA := stageOrder[s]
	b, okB := stageOrder[min]
	return okA && okB && a >= b
}

// StageAt maps a point in time onto the schedule using strict comparisons
// against the three boundaries. Once the purchase window closes the sale is
// completed forever.
func StageAt(now int64, s *Schedule) Stage {
	if s == nil {
		return StageComingSoon
	}
	if now < s.ComingSoonEnd {
		return StageComingSoon
	}
	if now < s.OnlyKycEnd {
		return StageOnlyKyc
	}
	if now < s.PurchaseEnd {
		return StageTokenPurchase
	}
	return StageCompleted
}
