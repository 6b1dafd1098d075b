package events

// WireEvent is the external event envelope named in spec.md §6: a type
// tag, a millisecond timestamp, and a type-specific payload object.
type WireEvent struct {
	Type    string         `json:"type"`
	TSMS    int64          `json:"ts_ms"`
	Payload map[string]any `json:"payload"`
}

var wireTypeNames = map[Type]string{
	TypePeerOnline:    "PEER_ONLINE",
	TypePeerOffline:   "PEER_OFFLINE",
	TypeItemMetaAdded: "ITEM_META_ADDED",
	TypeContentCached: "CONTENT_CACHED",
	TypeCoreError:     "CORE_ERROR",
}

// Wire maps an internal Event onto the §6 JSON schema external callers
// (the CLI, a future UI) observe on the event stream.
func (e *Event) Wire() WireEvent {
	payload := map[string]any{}
	switch e.Type {
	case TypePeerOnline:
		payload["device_id"] = e.DeviceID
	case TypePeerOffline:
		payload["device_id"] = e.DeviceID
		payload["reason"] = e.Message
	case TypeItemMetaAdded:
		payload["item_id"] = e.ItemID
		if e.SHA256 != "" {
			payload["sha256"] = e.SHA256
		}
	case TypeContentCached:
		payload["transfer_id"] = e.TransferID
		payload["local_ref"] = map[string]any{"local_path": e.LocalPath}
	case TypeCoreError:
		payload["code"] = e.Message
		payload["affects_session"] = e.DeviceID != ""
	}

	return WireEvent{
		Type:    wireTypeNames[e.Type],
		TSMS:    e.Timestamp.UnixMilli(),
		Payload: payload,
	}
}
