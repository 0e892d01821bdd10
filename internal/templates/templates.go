// Package templates holds the starter updater files written by swapup init.
// Each starter is named after the update style it configures.
package templates

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/adamancini/swapup/internal/config"
)

//go:embed *.yaml
var starterFS embed.FS

// Starter is an embedded updater file for one update style.
type Starter struct {
	Style   string
	Summary string
	Body    []byte
}

var summaries = map[string]string{
	"executable": "Replace a single executable from release assets",
	"archive":    "Extract a zip release into a directory in place",
}

// Styles lists the styles that ship a starter, sorted.
func Styles() []string {
	entries, err := starterFS.ReadDir(".")
	if err != nil {
		return nil
	}

	var styles []string
	for _, entry := range entries {
		if !entry.IsDir() {
			styles = append(styles, strings.TrimSuffix(entry.Name(), path.Ext(entry.Name())))
		}
	}
	sort.Strings(styles)
	return styles
}

// Lookup returns the starter for style.
func Lookup(style string) (*Starter, error) {
	body, err := starterFS.ReadFile(style + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no starter config for style %q (have %s)", style, strings.Join(Styles(), ", "))
	}
	return &Starter{Style: style, Summary: Summary(style), Body: body}, nil
}

// Summary is the one-line description shown by init and shell completion.
func Summary(style string) string {
	if s, ok := summaries[style]; ok {
		return s
	}
	return "Remote starter config"
}

// Project names the release source a starter is rendered for. Repo is a
// GitHub "owner/name" pair; Asset overrides the starter's asset pattern.
type Project struct {
	Repo  string
	Asset string
}

// Render fills the OWNER/REPO placeholders from p and expands environment
// references. Placeholders are left untouched when p.Repo is empty so the
// user can edit them by hand.
func (s *Starter) Render(p Project) ([]byte, error) {
	body := string(s.Body)

	if p.Repo != "" {
		owner, name, ok := strings.Cut(p.Repo, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return nil, fmt.Errorf("repository must be owner/name, got %q", p.Repo)
		}
		body = strings.ReplaceAll(body, "OWNER/REPO", owner+"/"+name)
		body = strings.ReplaceAll(body, "REPO", name)
	}
	if p.Asset != "" {
		body = replaceAsset(body, p.Asset)
	}

	return config.ExpandEnv([]byte(body)), nil
}

// replaceAsset rewrites the top-level asset key.
func replaceAsset(body, asset string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "asset:") {
			lines[i] = "asset: " + asset
		}
	}
	return strings.Join(lines, "\n")
}
