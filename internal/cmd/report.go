package cmd

import (
	"fmt"
	"strings"

	"github.com/adamancini/swapup/internal/lifecycle"
	"github.com/adamancini/swapup/internal/update"
)

// Report is the printable result of check, update and apply-update.
type Report struct {
	Outcome   string `json:"outcome" yaml:"outcome"`
	Installed string `json:"installed,omitempty" yaml:"installed,omitempty"`
	Latest    string `json:"latest,omitempty" yaml:"latest,omitempty"`
	Asset     string `json:"asset,omitempty" yaml:"asset,omitempty"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	Artifact  string `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
}

func newReport(out lifecycle.Outcome) Report {
	r := Report{
		Outcome:   out.Kind.String(),
		Installed: out.Installed,
		Latest:    out.CandidateTag(),
		Artifact:  out.Artifact,
	}
	if out.Candidate != nil {
		r.Asset = out.Candidate.Asset.Name
		r.URL = out.Candidate.Asset.DownloadURL
	}
	if out.Err != nil {
		r.Error = out.Err.Error()
		if kind := update.KindOf(out.Err); kind != update.KindUnknown {
			r.ErrorKind = kind.String()
		}
	}
	return r
}

func (r Report) String() string {
	installed := r.Installed
	if installed == "" {
		installed = "not installed"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current version: %s", installed)
	if r.Latest != "" {
		fmt.Fprintf(&b, "\nLatest version:  %s", r.Latest)
	}

	switch r.Outcome {
	case lifecycle.OutcomeNoUpdate.String():
		b.WriteString("\nAlready running latest version")
	case lifecycle.OutcomeUpdateAvailable.String():
		fmt.Fprintf(&b, "\nUpdate available: %s", r.Asset)
	case lifecycle.OutcomeRelaunched.String():
		b.WriteString("\nRestarting to apply update...")
	case lifecycle.OutcomeApplied.String():
		b.WriteString("\nUpdate installed")
	case lifecycle.OutcomeCancelled.String():
		b.WriteString("\nUpdate cancelled")
	case lifecycle.OutcomeFailed.String():
		fmt.Fprintf(&b, "\nUpdate failed: %s", r.Error)
	}
	return b.String()
}
