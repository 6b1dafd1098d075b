package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/clipbridge/clipbridge/pkg/events"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/clipbridge/clipbridge/pkg/wire/control"
	"github.com/clipbridge/clipbridge/pkg/wire/frame"
	"github.com/google/uuid"
)

// onContentGet answers a peer's request for content bytes: it looks the
// item up in the local catalog, opens the blob from the CAS, and
// streams it as a ContentBegin/Data.../ContentEnd sequence. The local
// history lookup is bounded generously since items are looked up by id,
// not by position.
func (a *actor) onContentGet(m *control.ContentGet) error {
	if a.state != StateOnline {
		return nil
	}

	items, err := a.deps.Catalog.ListHistoryMetas(a.deps.Config.AccountUID, 1<<20)
	if err != nil {
		return a.sendContentError(m.ItemID, fmt.Sprintf("list history: %v", err))
	}

	var meta *types.ItemMeta
	for i := range items {
		if items[i].ItemID == m.ItemID {
			meta = &items[i]
			break
		}
	}
	if meta == nil {
		return a.sendContentError(m.ItemID, "item not found")
	}

	sha := meta.Content.SHA256
	mime := meta.Content.MIME
	total := meta.Content.Length
	if m.FileID != "" {
		found := false
		for _, f := range meta.Files {
			if f.FileID == m.FileID {
				sha = f.SHA256
				total = f.Size
				mime = "application/octet-stream"
				found = true
				break
			}
		}
		if !found {
			return a.sendContentError(m.ItemID, "file id not found in item")
		}
	}

	if !a.deps.CAS.BlobExists(sha) {
		return a.sendContentError(m.ItemID, "content not present locally")
	}

	blob, err := a.deps.CAS.Get(sha)
	if err != nil {
		return a.sendContentError(m.ItemID, fmt.Sprintf("open blob: %v", err))
	}
	defer blob.Close()

	reqID := uuid.NewString()
	if err := a.send(control.TypeContentBegin, control.ContentBegin{
		ReqID:      reqID,
		ItemID:     m.ItemID,
		FileID:     m.FileID,
		TotalBytes: total,
		SHA256:     sha,
		MIME:       mime,
	}); err != nil {
		return err
	}

	buf := make([]byte, contentChunkSize)
	for {
		n, rerr := blob.Read(buf)
		if n > 0 {
			if werr := a.sendFrame(frame.Frame{Type: frame.TypeData, Payload: append([]byte(nil), buf[:n]...)}); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = a.send(control.TypeContentCancel, control.ContentCancel{ReqID: reqID, Reason: rerr.Error()})
			return fmt.Errorf("session: read blob: %w", rerr)
		}
	}

	return a.send(control.TypeContentEnd, control.ContentEnd{ReqID: reqID, SHA256: sha})
}

func (a *actor) sendContentError(itemID, message string) error {
	return a.send(control.TypeError, control.ErrorMsg{ErrorCode: "CONTENT_UNAVAILABLE", Message: fmt.Sprintf("%s: %s", itemID, message)})
}

// onContentBegin opens a tmp file in the CAS to receive the transfer the
// local side previously requested via RequestContent.
func (a *actor) onContentBegin(m *control.ContentBegin) error {
	if a.pendingFetch == nil {
		a.logger.Warn().Str("req_id", m.ReqID).Msg("content begin with no pending fetch")
		return nil
	}
	if !isValidSHA(m.SHA256) {
		a.failPendingFetch("peer sent an invalid content sha256")
		return nil
	}

	f, tmpPath, err := a.deps.CAS.NewTmpFile(m.ReqID + ".tmp")
	if err != nil {
		a.failPendingFetch(fmt.Sprintf("open tmp file: %v", err))
		return nil
	}

	a.incoming = &incomingTransfer{
		reqID:      m.ReqID,
		sha256:     m.SHA256,
		mime:       m.MIME,
		totalBytes: m.TotalBytes,
		hasher:     sha256.New(),
		file:       f,
		tmpPath:    tmpPath,
		itemID:     a.pendingFetch.itemID,
		fileID:     a.pendingFetch.fileID,
	}
	return nil
}

func (a *actor) handleDataFrame(payload []byte) error {
	if a.incoming == nil {
		a.logger.Warn().Msg("data frame with no active transfer")
		return nil
	}
	if _, err := a.incoming.file.Write(payload); err != nil {
		a.abortIncomingTransfer(fmt.Sprintf("write tmp file: %v", err))
		return nil
	}
	a.incoming.hasher.Write(payload)
	a.incoming.written += int64(len(payload))
	return nil
}

func (a *actor) onContentEnd(m *control.ContentEnd) error {
	t := a.incoming
	if t == nil || t.reqID != m.ReqID {
		a.logger.Warn().Str("req_id", m.ReqID).Msg("content end for unknown transfer")
		return nil
	}

	tmpPath := t.tmpPath
	if err := t.file.Close(); err != nil {
		a.finishIncoming(fmt.Errorf("close tmp file: %w", err))
		os.Remove(tmpPath)
		return nil
	}

	if t.written != t.totalBytes {
		a.finishIncoming(fmt.Errorf("short transfer: got %d bytes, expected %d", t.written, t.totalBytes))
		os.Remove(tmpPath)
		return nil
	}

	gotSHA := hex.EncodeToString(t.hasher.Sum(nil))
	if gotSHA != t.sha256 || gotSHA != m.SHA256 {
		a.finishIncoming(fmt.Errorf("content hash mismatch: got %s, expected %s", gotSHA, t.sha256))
		os.Remove(tmpPath)
		return nil
	}

	if err := a.deps.CAS.CommitTmpFile(tmpPath, t.sha256); err != nil {
		a.finishIncoming(fmt.Errorf("commit blob: %w", err))
		return nil
	}

	now := types.NowMS(time.Now())
	if err := a.deps.Catalog.MarkCachePresent(t.sha256, now); err != nil {
		a.logger.Warn().Err(err).Str("sha256", t.sha256).Msg("mark cache present failed")
	}

	transferID := ""
	if a.pendingFetch != nil {
		transferID = a.pendingFetch.transferID
	}
	localPath, _ := a.deps.CAS.BlobPath(t.sha256)
	a.deps.Events.Publish(&events.Event{
		Type:       events.TypeContentCached,
		ItemID:     t.itemID,
		SHA256:     t.sha256,
		TransferID: transferID,
		LocalPath:  localPath,
	})

	a.incoming = nil
	a.pendingFetch = nil
	return nil
}

// abortIncomingTransfer discards an in-progress inbound transfer,
// removing its tmp file, and reports failure for the request that
// started it, if any.
func (a *actor) abortIncomingTransfer(reason string) {
	if a.incoming == nil {
		return
	}
	t := a.incoming
	t.file.Close()
	os.Remove(t.tmpPath)
	a.incoming = nil
	a.failPendingFetch(reason)
}

func (a *actor) failPendingFetch(reason string) {
	if a.pendingFetch == nil {
		return
	}
	a.deps.Events.Publish(&events.Event{
		Type:       events.TypeCoreError,
		ItemID:     a.pendingFetch.itemID,
		TransferID: a.pendingFetch.transferID,
		Message:    reason,
	})
	a.pendingFetch = nil
}

func (a *actor) finishIncoming(err error) {
	a.incoming = nil
	if err != nil {
		a.failPendingFetch(err.Error())
	}
}

func isValidSHA(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
