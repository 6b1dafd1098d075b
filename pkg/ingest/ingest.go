package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/clipbridge/clipbridge/pkg/policy"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/google/uuid"
)

// previewTextPrefixLen is the maximum number of characters copied into a
// text item's preview.
const previewTextPrefixLen = 300

// itemTTL is how long an ingested item remains valid from its creation
// timestamp.
const itemTTL = 7 * 24 * time.Hour

// Snapshot is the raw clipboard content to be ingested, exactly one of its
// kind-specific fields populated per Kind.
type Snapshot struct {
	Kind types.Kind
	TS   time.Time

	Text string // KindText

	ImageBytes  []byte // KindImage
	ImageMIME   string
	ImageWidth  int
	ImageHeight int

	Files []types.FileMember // KindFileList
}

// Plan is the result of planning an ingest: the built ItemMeta, the
// policy decision, and the canonical content bytes ready for the caller to
// put into the CAS.
type Plan struct {
	Meta             types.ItemMeta
	Strategy         types.Strategy
	NeedsUserConfirm bool
	ContentBytes     []byte
}

// PlanIngest canonicalizes snap into content bytes, hashes them, builds a
// preview and ItemMeta, and invokes the policy engine. It returns an error
// carrying policy.ErrCodeItemTooLarge if the item exceeds its kind's hard
// cap; the caller is expected to surface that code directly.
func PlanIngest(snap Snapshot, deviceID, deviceName string, force bool, limits types.SizeLimits) (Plan, error) {
	content, preview, err := canonicalize(snap)
	if err != nil {
		return Plan{}, err
	}

	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])

	mime := mimeFor(snap)
	size := estimatedSize(snap, content)

	decision, err := policy.Evaluate(snap.Kind, size, force, limits)
	if err != nil {
		return Plan{}, err
	}
	if decision.Rejected {
		return Plan{}, &PolicyRejectedError{Code: decision.Code}
	}

	createdMS := snap.TS.UnixMilli()
	meta := types.ItemMeta{
		ItemID: uuid.NewString(),
		Kind:   snap.Kind,
		Content: types.ContentDescriptor{
			MIME:   mime,
			SHA256: sha,
			Length: int64(len(content)),
		},
		Size:             size,
		SourceDeviceID:   deviceID,
		SourceDeviceName: deviceName,
		CreatedAtMS:      createdMS,
		ExpiresAtMS:      snap.TS.Add(itemTTL).UnixMilli(),
		Preview:          preview,
		Files:            stripLocalPaths(snap.Files),
	}

	return Plan{
		Meta:             meta,
		Strategy:         decision.Strategy,
		NeedsUserConfirm: decision.NeedsUserConfirm,
		ContentBytes:     content,
	}, nil
}

// PolicyRejectedError wraps a hard-cap rejection code for callers that
// need to distinguish it from other ingest failures.
type PolicyRejectedError struct {
	Code string
}

func (e *PolicyRejectedError) Error() string {
	return fmt.Sprintf("ingest: rejected: %s", e.Code)
}

// estimatedSize is the size estimate spec.md §3 assigns per kind: for
// text/image it's the content bytes themselves, but for a file-list it's
// the sum of member file sizes, not the byte length of the manifest that
// describes them — the manifest is a few hundred bytes regardless of how
// much the files it lists actually total.
func estimatedSize(snap Snapshot, content []byte) int64 {
	if snap.Kind != types.KindFileList {
		return int64(len(content))
	}
	var total int64
	for _, f := range snap.Files {
		total += f.Size
	}
	return total
}

func canonicalize(snap Snapshot) ([]byte, types.Preview, error) {
	switch snap.Kind {
	case types.KindText:
		b := []byte(snap.Text)
		prefix := snap.Text
		n := 0
		for i := range prefix {
			if n == previewTextPrefixLen {
				prefix = prefix[:i]
				break
			}
			n++
		}
		return b, types.Preview{TextPrefix: prefix}, nil

	case types.KindImage:
		return snap.ImageBytes, types.Preview{
			ImageWidth:  snap.ImageWidth,
			ImageHeight: snap.ImageHeight,
		}, nil

	case types.KindFileList:
		manifest, err := fileListManifest(snap.Files)
		if err != nil {
			return nil, types.Preview{}, err
		}
		return manifest, types.Preview{FileCount: len(snap.Files)}, nil

	default:
		return nil, types.Preview{}, fmt.Errorf("ingest: unknown kind %q", snap.Kind)
	}
}

// fileListManifest builds a deterministic JSON encoding of file
// descriptors (sorted by file id) so identical file sets always hash to
// the same content sha regardless of the order they were gathered in.
func fileListManifest(files []types.FileMember) ([]byte, error) {
	sorted := make([]types.FileMember, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FileID < sorted[j].FileID })

	// LocalPath never enters the hashed manifest: it's local-only state,
	// stripped before the item is ever broadcast.
	stripped := stripLocalPaths(sorted)
	data, err := json.Marshal(stripped)
	if err != nil {
		return nil, fmt.Errorf("ingest: marshal file manifest: %w", err)
	}
	return data, nil
}

func stripLocalPaths(files []types.FileMember) []types.FileMember {
	if files == nil {
		return nil
	}
	out := make([]types.FileMember, len(files))
	for i, f := range files {
		f.LocalPath = ""
		out[i] = f
	}
	return out
}

func mimeFor(snap Snapshot) string {
	switch snap.Kind {
	case types.KindText:
		return "text/plain; charset=utf-8"
	case types.KindImage:
		return snap.ImageMIME
	case types.KindFileList:
		return "application/vnd.clipbridge.file-manifest+json"
	default:
		return "application/octet-stream"
	}
}
