package media

// Outcome summarises the per-quality items of a video for callers.
type Outcome string

const (
	OutcomeProcessing Outcome = "processing"
	OutcomeComplete   Outcome = "complete"
	OutcomePartial    Outcome = "partial"
	OutcomeFailed     Outcome = "failed"
)

// DeriveOutcome folds item states into an Outcome. A video that is not
// complete is always processing, whatever its items say.
func DeriveOutcome(v *Video, items []*DerivationItem) Outcome {
	if v == nil || !v.IsComplete() {
		return OutcomeProcessing
	}
	succeeded, failed := 0, 0
	for _, it := range items {
		switch it.Status {
		case ItemStatusSucceeded:
			succeeded++
		case ItemStatusFailed:
			failed++
		}
	}
	switch {
	case failed == 0:
		return OutcomeComplete
	case succeeded == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}
