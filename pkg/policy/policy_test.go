package policy

import (
	"testing"

	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	limits := types.DefaultSizeLimits()

	tests := []struct {
		name             string
		kind             types.Kind
		size             int64
		force            bool
		wantRejected     bool
		wantStrategy     types.Strategy
		wantNeedsConfirm bool
	}{
		{
			name:         "text at soft cap auto-prefetches without confirm",
			kind:         types.KindText,
			size:         limits.Text.SoftCap,
			wantStrategy: types.StrategyMetaPlusAutoPrefetch,
		},
		{
			name:             "text one byte over soft cap needs confirm",
			kind:             types.KindText,
			size:             limits.Text.SoftCap + 1,
			wantStrategy:     types.StrategyMetaOnlyLazy,
			wantNeedsConfirm: true,
		},
		{
			name:         "text over soft cap with force skips confirm and demotes strategy",
			kind:         types.KindText,
			size:         limits.Text.SoftCap + 1,
			force:        true,
			wantStrategy: types.StrategyMetaOnlyLazy,
		},
		{
			name:         "image within soft cap is meta-only-lazy",
			kind:         types.KindImage,
			size:         limits.Image.SoftCap,
			wantStrategy: types.StrategyMetaOnlyLazy,
		},
		{
			name:         "text over hard cap is rejected",
			kind:         types.KindText,
			size:         limits.Text.HardCap + 1,
			wantRejected: true,
		},
		{
			name:         "file-list over hard cap is rejected even with force",
			kind:         types.KindFileList,
			size:         limits.FileList.HardCap + 1,
			force:        true,
			wantRejected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Evaluate(tt.kind, tt.size, tt.force, limits)
			require.NoError(t, err)
			require.Equal(t, tt.wantRejected, d.Rejected)
			if tt.wantRejected {
				require.Equal(t, ErrCodeItemTooLarge, d.Code)
				return
			}
			require.Equal(t, tt.wantStrategy, d.Strategy)
			require.Equal(t, tt.wantNeedsConfirm, d.NeedsUserConfirm)
		})
	}
}

func TestEvaluateUnknownKind(t *testing.T) {
	_, err := Evaluate(types.Kind("bogus"), 1, false, types.DefaultSizeLimits())
	require.Error(t, err)
}
