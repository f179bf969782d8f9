package mediaproxy

import "strconv"

// ResourceType selects which origin listing a media path refers to.
type ResourceType int

const (
	// ResourceManifest is form-level media, keyed by survey id.
	ResourceManifest ResourceType = 0
	// ResourceInstance is submission-level attachments, keyed by instance id.
	ResourceInstance ResourceType = 1
)

func (t ResourceType) String() string {
	return strconv.Itoa(int(t))
}

func (t ResourceType) valid() bool {
	return t == ResourceManifest || t == ResourceInstance
}

// CacheKey scopes a resolution to one device. Origin manifests may differ per
// device, so the same local path can map to different remote URLs.
type CacheKey struct {
	DeviceID  string
	LocalPath string
}

// MediaURLSegments is the structural parse of an inbound media path.
type MediaURLSegments struct {
	ResourceType ResourceType
	ResourceID   string
	FileName     string
}

// Credentials are forwarded to the origin on manifest requests.
type Credentials struct {
	Username string
	Password string
}

// HostURLOptions describes one inbound request. It is built per request and
// never stored.
type HostURLOptions struct {
	BasePath    string
	DeviceID    string
	Auth        *Credentials
	Cookie      string
	RequestPath string
}

// Survey holds the origin coordinates of a form.
type Survey struct {
	OpenRosaServer string `json:"openRosaServer"`
	OpenRosaID     string `json:"openRosaId"`

	// Filled by FormInfoProvider.ExtendedInfo.
	ManifestURL string `json:"manifestUrl,omitempty"`

	Auth   *Credentials `json:"-"`
	Cookie string       `json:"-"`
}

// ManifestEntry is one <mediaFile> of an OpenRosa manifest. Hash is
// informational and never verified here.
type ManifestEntry struct {
	Filename    string
	DownloadURL string
	Hash        string
}

// MediaEntry is a resolved filename → remote URL pair.
type MediaEntry struct {
	Filename string
	URL      string
}
