package ingest

import (
	"testing"
	"time"

	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestPlanIngestText(t *testing.T) {
	snap := Snapshot{
		Kind: types.KindText,
		TS:   time.UnixMilli(1000),
		Text: "hello clipboard",
	}
	plan, err := PlanIngest(snap, "device-a", "Alice's Mac", false, types.DefaultSizeLimits())
	require.NoError(t, err)
	require.Equal(t, types.StrategyMetaPlusAutoPrefetch, plan.Strategy)
	require.False(t, plan.NeedsUserConfirm)
	require.Equal(t, "hello clipboard", plan.Meta.Preview.TextPrefix)
	require.Equal(t, int64(1000), plan.Meta.CreatedAtMS)
	require.Equal(t, int64(1000)+7*24*3600*1000, plan.Meta.ExpiresAtMS)
	require.NotEmpty(t, plan.Meta.ItemID)
	require.Len(t, plan.Meta.Content.SHA256, 64)
}

func TestPlanIngestTextPreviewTruncatedAt300Chars(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	snap := Snapshot{Kind: types.KindText, TS: time.UnixMilli(1000), Text: string(long)}
	plan, err := PlanIngest(snap, "d", "", false, types.DefaultSizeLimits())
	require.NoError(t, err)
	require.Len(t, plan.Meta.Preview.TextPrefix, 300)
}

func TestPlanIngestRejectsOverHardCap(t *testing.T) {
	limits := types.DefaultSizeLimits()
	snap := Snapshot{
		Kind:       types.KindImage,
		TS:         time.UnixMilli(1000),
		ImageBytes: make([]byte, limits.Image.HardCap+1),
		ImageMIME:  "image/png",
	}
	_, err := PlanIngest(snap, "d", "", false, limits)
	require.Error(t, err)
	var polErr *PolicyRejectedError
	require.ErrorAs(t, err, &polErr)
}

func TestPlanIngestFileListManifestIsOrderIndependent(t *testing.T) {
	ts := time.UnixMilli(1000)
	filesA := []types.FileMember{
		{FileID: "b", Name: "b.txt", Size: 2, LocalPath: "/tmp/b.txt"},
		{FileID: "a", Name: "a.txt", Size: 1, LocalPath: "/tmp/a.txt"},
	}
	filesB := []types.FileMember{
		{FileID: "a", Name: "a.txt", Size: 1, LocalPath: "/home/user/a.txt"},
		{FileID: "b", Name: "b.txt", Size: 2, LocalPath: "/home/user/b.txt"},
	}

	planA, err := PlanIngest(Snapshot{Kind: types.KindFileList, TS: ts, Files: filesA}, "d", "", false, types.DefaultSizeLimits())
	require.NoError(t, err)
	planB, err := PlanIngest(Snapshot{Kind: types.KindFileList, TS: ts, Files: filesB}, "d", "", false, types.DefaultSizeLimits())
	require.NoError(t, err)

	require.Equal(t, planA.Meta.Content.SHA256, planB.Meta.Content.SHA256, "identical file sets must hash identically regardless of local paths or gather order")
	require.Equal(t, 2, planA.Meta.Preview.FileCount)
	require.Empty(t, planA.Meta.Files[0].LocalPath, "local paths must never survive into the broadcast meta")
}

func TestPlanIngestFileListSizeIsSumOfMemberSizes(t *testing.T) {
	ts := time.UnixMilli(1000)
	files := []types.FileMember{
		{FileID: "a", Name: "a.bin", Size: 100},
		{FileID: "b", Name: "b.bin", Size: 200},
	}
	plan, err := PlanIngest(Snapshot{Kind: types.KindFileList, TS: ts, Files: files}, "d", "", false, types.DefaultSizeLimits())
	require.NoError(t, err)
	require.Equal(t, int64(300), plan.Meta.Size, "size estimate must be the sum of member file sizes, not the manifest length")
	require.Less(t, plan.Meta.Content.Length, plan.Meta.Size, "content descriptor length is the manifest's own byte length")
}

func TestPlanIngestFileListOverHardCapByMemberSizesIsRejected(t *testing.T) {
	limits := types.DefaultSizeLimits()
	files := []types.FileMember{
		{FileID: "a", Name: "huge.bin", Size: limits.FileList.HardCap + 1},
	}
	_, err := PlanIngest(Snapshot{Kind: types.KindFileList, TS: time.UnixMilli(1000), Files: files}, "d", "", false, limits)
	require.Error(t, err, "a file-list whose member sizes exceed the hard cap must be rejected even though its manifest is tiny")
	var polErr *PolicyRejectedError
	require.ErrorAs(t, err, &polErr)
}

func TestPlanIngestForceDemotesStrategyAndSkipsConfirm(t *testing.T) {
	limits := types.DefaultSizeLimits()
	snap := Snapshot{
		Kind: types.KindText,
		TS:   time.UnixMilli(1000),
		Text: string(make([]byte, limits.Text.SoftCap+1)),
	}
	plan, err := PlanIngest(snap, "d", "", true, limits)
	require.NoError(t, err)
	require.Equal(t, types.StrategyMetaOnlyLazy, plan.Strategy)
	require.False(t, plan.NeedsUserConfirm)
}
