package policy

import (
	"fmt"

	"github.com/clipbridge/clipbridge/pkg/types"
)

// ErrCodeItemTooLarge is the error code surfaced to callers when a decision
// rejects for exceeding the hard cap.
const ErrCodeItemTooLarge = "ITEM_TOO_LARGE"

// Decision is the outcome of evaluating an item against the size limits
// table. Exactly one of Rejected or Allowed applies; check Rejected first.
type Decision struct {
	Rejected bool
	Code     string

	Strategy        types.Strategy
	NeedsUserConfirm bool
}

// RejectedHardCap builds a Decision for an item whose size exceeds its
// kind's hard cap.
func RejectedHardCap() Decision {
	return Decision{Rejected: true, Code: ErrCodeItemTooLarge}
}

// Evaluate decides how an item of the given kind and size should be
// ingested. force=true bypasses the user-confirmation gate but demotes the
// strategy to MetaOnlyLazy regardless of size, matching the rule that a
// forced copy never auto-prefetches bytes the caller hasn't explicitly
// asked to skip confirmation on.
func Evaluate(kind types.Kind, size int64, force bool, limits types.SizeLimits) (Decision, error) {
	limit, err := limitFor(kind, limits)
	if err != nil {
		return Decision{}, err
	}

	if size > limit.HardCap {
		return RejectedHardCap(), nil
	}

	if force {
		return Decision{
			Strategy:        types.StrategyMetaOnlyLazy,
			NeedsUserConfirm: false,
		}, nil
	}

	if size > limit.SoftCap {
		return Decision{
			Strategy:        types.StrategyMetaOnlyLazy,
			NeedsUserConfirm: true,
		}, nil
	}

	strategy := types.StrategyMetaOnlyLazy
	if kind == types.KindText {
		strategy = types.StrategyMetaPlusAutoPrefetch
	}
	return Decision{
		Strategy:        strategy,
		NeedsUserConfirm: false,
	}, nil
}

func limitFor(kind types.Kind, limits types.SizeLimits) (types.SizeLimit, error) {
	switch kind {
	case types.KindText:
		return limits.Text, nil
	case types.KindImage:
		return limits.Image, nil
	case types.KindFileList:
		return limits.FileList, nil
	default:
		return types.SizeLimit{}, fmt.Errorf("policy: unknown kind %q", kind)
	}
}
