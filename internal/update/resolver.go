package update

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultFeedTimeout bounds a single feed request.
	DefaultFeedTimeout = 30 * time.Second

	maxFeedBytes = 8 << 20
)

//go:embed feed.schema.json
var feedSchemaJSON []byte

var (
	feedSchemaOnce sync.Once
	feedSchema     *jsonschema.Schema
	feedSchemaErr  error
)

func compiledFeedSchema() (*jsonschema.Schema, error) {
	feedSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(feedSchemaJSON))
		if err != nil {
			feedSchemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("feed.schema.json", doc); err != nil {
			feedSchemaErr = err
			return
		}
		feedSchema, feedSchemaErr = c.Compile("feed.schema.json")
	})
	return feedSchema, feedSchemaErr
}

// Resolver queries a release feed and selects the update candidate.
// It owns its HTTP client; it never retries.
type Resolver struct {
	client    *http.Client
	token     string // Optional bearer token, for rate limiting
	userAgent string
}

// NewResolver creates a resolver. A nil client gets a default one with
// DefaultFeedTimeout.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: DefaultFeedTimeout}
	}
	return &Resolver{
		client:    client,
		userAgent: "swapup",
	}
}

// WithToken sets an optional token sent as a bearer credential
func (r *Resolver) WithToken(token string) *Resolver {
	r.token = token
	return r
}

// WithUserAgent overrides the User-Agent header
func (r *Resolver) WithUserAgent(ua string) *Resolver {
	if ua != "" {
		r.userAgent = ua
	}
	return r
}

// Resolve fetches the feed and returns the candidate for q.
// A nil candidate with a nil error means the feed offers no update.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Candidate, error) {
	releases, err := r.FetchReleases(ctx, q.FeedURL)
	if err != nil {
		return nil, err
	}

	candidate := SelectCandidate(releases, q)
	if candidate == nil {
		log.Debugf("no candidate for asset %q in %d releases", q.AssetName, len(releases))
		return nil, nil
	}

	log.Debugf("selected release %s asset %s", candidate.Release.TagName, candidate.Asset.Name)
	return candidate, nil
}

// SelectCandidate scans releases in feed order. The first release that is
// allowed and not ignored decides the outcome: if it lacks the asset there
// is no candidate, older releases are not considered.
func SelectCandidate(releases []Release, q Query) *Candidate {
	for _, rel := range releases {
		if rel.Prerelease && !q.AllowPrerelease {
			continue
		}
		if q.ignores(rel.TagName) {
			continue
		}

		asset, ok := rel.FindAsset(q.AssetName)
		if !ok {
			log.Warnf("release %s has no asset named %q", rel.TagName, q.AssetName)
			return nil
		}
		return &Candidate{Release: rel, Asset: asset}
	}
	return nil
}

// FetchReleases downloads and decodes the feed. The feed may be a JSON
// array of releases or a single release object; order is preserved.
func (r *Resolver) FetchReleases(ctx context.Context, feedURL string) ([]Release, error) {
	body, err := r.get(ctx, feedURL, maxFeedBytes, "application/vnd.github+json")
	if err != nil {
		return nil, NewError(KindFeedUnavailable, "fetch feed", err)
	}
	return DecodeFeed(body)
}

// DecodeFeed validates and decodes a feed document.
func DecodeFeed(data []byte) ([]Release, error) {
	schema, err := compiledFeedSchema()
	if err != nil {
		return nil, fmt.Errorf("compile feed schema: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, NewError(KindFeedMalformed, "decode feed", err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, NewError(KindFeedMalformed, "validate feed", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var rel Release
		if err := json.Unmarshal(trimmed, &rel); err != nil {
			return nil, NewError(KindFeedMalformed, "decode feed", err)
		}
		return []Release{rel}, nil
	}

	var releases []Release
	if err := json.Unmarshal(trimmed, &releases); err != nil {
		return nil, NewError(KindFeedMalformed, "decode feed", err)
	}
	return releases, nil
}

// FetchSmall downloads a small document such as a checksum list or a
// signature, reading at most limit bytes.
func (r *Resolver) FetchSmall(ctx context.Context, url string, limit int64) ([]byte, error) {
	return r.get(ctx, url, limit, "")
}

func (r *Resolver) get(ctx context.Context, url string, limit int64, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", r.userAgent)
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response larger than %d bytes", limit)
	}
	return data, nil
}
