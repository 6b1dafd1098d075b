package types

import "time"

// Kind tags the payload type of an ItemMeta.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindFileList Kind = "file-list"
)

// Strategy is the ingestion strategy chosen by the Policy Engine.
type Strategy string

const (
	StrategyMetaOnlyLazy         Strategy = "meta-only-lazy"
	StrategyMetaPlusAutoPrefetch Strategy = "meta-plus-auto-prefetch"
)

// ContentDescriptor is the immutable content identity of an ItemMeta: its
// MIME type, the sha-256 hex of its canonical bytes, and the total length
// of those bytes.
type ContentDescriptor struct {
	MIME   string `json:"mime"`
	SHA256 string `json:"sha256"`
	Length int64  `json:"length"`
}

// Preview is a small, kind-dependent hint shown to a user before content is
// fetched: a text prefix, image dimensions, or a file count.
type Preview struct {
	TextPrefix  string `json:"text_prefix,omitempty"`
	ImageWidth  int    `json:"image_width,omitempty"`
	ImageHeight int    `json:"image_height,omitempty"`
	FileCount   int    `json:"file_count,omitempty"`
}

// FileMember is one file in a file-list item. LocalPath is stripped before
// the item is broadcast to peers.
type FileMember struct {
	FileID    string `json:"file_id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	SHA256    string `json:"sha256,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
}

// ItemMeta is the unit of synchronization: a single clipboard payload's
// metadata. Content bytes live in the CAS, keyed by Content.SHA256.
type ItemMeta struct {
	ItemID           string            `json:"item_id"`
	Kind             Kind              `json:"kind"`
	Content          ContentDescriptor `json:"content"`
	Size             int64             `json:"size"`
	SourceDeviceID   string            `json:"source_device_id"`
	SourceDeviceName string            `json:"source_device_name,omitempty"`
	CreatedAtMS      int64             `json:"created_at_ms"`
	ExpiresAtMS      int64             `json:"expires_at_ms,omitempty"`
	Preview          Preview           `json:"preview"`
	Files            []FileMember      `json:"files,omitempty"`
	ProtocolType     int               `json:"protocol_type"`
}

// HistoryEntry associates an account-scoped history row with an item.
type HistoryEntry struct {
	AccountUID   string `json:"account_uid"`
	ItemID       string `json:"item_id"`
	SortTS       int64  `json:"sort_ts"`
	SourceDevice string `json:"source_device"`
	Deleted      bool   `json:"deleted"`
}

// CacheRow tracks whether a content sha's blob bytes are present locally.
type CacheRow struct {
	SHA256       string `json:"sha256"`
	TotalBytes   int64  `json:"total_bytes"`
	Present      bool   `json:"present"`
	LastAccessMS int64  `json:"last_access_ms"`
	CreatedAtMS  int64  `json:"created_at_ms"`
}

// PeerCandidate is an unconnected discovery result.
type PeerCandidate struct {
	DeviceID     string   `json:"device_id"`
	Addrs        []string `json:"addrs"`
	Capabilities []string `json:"capabilities"`
}

// TrustedPeer is a pinned TLS certificate fingerprint for a (account,
// device) pair, established on first successful authentication (TOFU).
type TrustedPeer struct {
	AccountUID     string `json:"account_uid"`
	DeviceID       string `json:"device_id"`
	FingerprintHex string `json:"fingerprint_hex"`
	FirstSeenMS    int64  `json:"first_seen_ms"`
}

// PeerState is the externally observable state of a session, reported by
// Core.ListPeers.
type PeerState string

const (
	PeerDiscovered      PeerState = "discovered"
	PeerConnecting      PeerState = "connecting"
	PeerHandshaking     PeerState = "handshaking"
	PeerAccountVerified PeerState = "account_verified"
	PeerOnline          PeerState = "online"
	PeerOffline         PeerState = "offline"
)

// GlobalPolicy gates whether the supervisor broadcasts metadata at all.
type GlobalPolicy string

const (
	PolicyAllowAll GlobalPolicy = "allow_all"
	PolicyDenyAll  GlobalPolicy = "deny_all"
)

// SizeLimit is one kind's soft/hard byte caps for the Policy Engine.
type SizeLimit struct {
	SoftCap int64
	HardCap int64
}

// SizeLimits is the full per-kind limits table.
type SizeLimits struct {
	Text     SizeLimit
	Image    SizeLimit
	FileList SizeLimit
}

// DefaultSizeLimits returns the hard/soft caps named in the policy spec:
// 16 MiB / 256 MiB / 2 GiB hard, 1 MiB / 30 MiB / 200 MiB soft.
func DefaultSizeLimits() SizeLimits {
	const mib = 1 << 20
	const gib = 1 << 30
	return SizeLimits{
		Text:     SizeLimit{SoftCap: 1 * mib, HardCap: 16 * mib},
		Image:    SizeLimit{SoftCap: 30 * mib, HardCap: 256 * mib},
		FileList: SizeLimit{SoftCap: 200 * mib, HardCap: 2 * gib},
	}
}

// GCLimits bounds retained local state.
type GCLimits struct {
	MaxHistoryItems int
	MaxCASBytes     int64
}

// Config is the full configuration surface of a clipbridge device (spec §6).
type Config struct {
	DeviceID          string       `yaml:"device_id"`
	DeviceName        string       `yaml:"device_name"`
	AccountUID        string       `yaml:"account_uid"`
	AccountTag        string       `yaml:"account_tag"`
	DataDir           string       `yaml:"data_dir"`
	CacheDir          string       `yaml:"cache_dir"`
	SizeLimits        SizeLimits   `yaml:"-"`
	GC                GCLimits     `yaml:"gc"`
	GlobalPolicy      GlobalPolicy `yaml:"global_policy"`
	ListenAddr        string       `yaml:"listen_addr"`
	ControlSocketPath string       `yaml:"control_socket_path"`
	EventsSocketPath  string       `yaml:"events_socket_path"`
}

// NowMS returns t in milliseconds since epoch, the timestamp unit used
// throughout the catalog and wire protocol.
func NowMS(t time.Time) int64 {
	return t.UnixMilli()
}
