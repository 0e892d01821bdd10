package update

import (
	"context"
	"strings"
)

// Asset is a downloadable file attached to a release
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size,omitempty"` // 0 when the feed does not say
}

// Release is one entry of the release feed
type Release struct {
	TagName    string  `json:"tag_name"`
	Name       string  `json:"name,omitempty"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// FindAsset returns the asset whose name matches name case-insensitively.
func (r *Release) FindAsset(name string) (Asset, bool) {
	for _, a := range r.Assets {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Asset{}, false
}

// Candidate is the release selected by a check together with the asset
// that will be downloaded.
type Candidate struct {
	Release Release
	Asset   Asset
}

// Version parses the candidate's tag.
func (c *Candidate) Version() (Version, error) {
	return ParseVersion(c.Release.TagName)
}

// Query describes what the resolver should look for
type Query struct {
	FeedURL         string
	AssetName       string
	AllowPrerelease bool
	IgnoreTags      []string
}

func (q Query) ignores(tag string) bool {
	for _, t := range q.IgnoreTags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// Checker finds an update candidate
type Checker interface {
	Resolve(ctx context.Context, q Query) (*Candidate, error)
}

// Fetcher downloads assets
type Fetcher interface {
	Download(ctx context.Context, req Request, sink ProgressSink) (Result, error)
}
