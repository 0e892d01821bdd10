// Package types provides type-safe constants for the swapup configuration.
//
// This package centralizes the enumerated settings of the updater file,
// replacing magic strings with typed constants that provide validation
// and sensible defaults.
//
// SYNC REQUIREMENT: These types must stay in sync with
// internal/config/validate.go (runtime validation) and the starter files in
// internal/templates.
package types

import (
	"fmt"
	"strings"
)

// UpdateStyle is how a release is applied.
type UpdateStyle string

const (
	// StyleExecutable replaces a single executable by relaunching the
	// downloaded copy in apply mode.
	StyleExecutable UpdateStyle = "executable"
	// StyleArchive extracts a zip archive into the target directory in place.
	StyleArchive UpdateStyle = "archive"
)

// AllUpdateStyles returns all valid update styles.
func AllUpdateStyles() []UpdateStyle {
	return []UpdateStyle{StyleExecutable, StyleArchive}
}

// Validate checks if the UpdateStyle is a valid value.
// Empty is valid and means executable.
func (s UpdateStyle) Validate() error {
	switch s {
	case StyleExecutable, StyleArchive, "":
		return nil
	default:
		return fmt.Errorf("invalid style '%s' (must be executable or archive)", s)
	}
}

// String returns the string representation of the UpdateStyle.
func (s UpdateStyle) String() string {
	return string(s)
}

// IsArchive returns true if the style is archive.
func (s UpdateStyle) IsArchive() bool {
	return s == StyleArchive
}

// Default returns StyleExecutable if empty, otherwise the current style.
func (s UpdateStyle) Default() UpdateStyle {
	if s == "" {
		return StyleExecutable
	}
	return s
}

// ParseUpdateStyle parses a string into an UpdateStyle.
func ParseUpdateStyle(s string) (UpdateStyle, error) {
	st := UpdateStyle(strings.ToLower(strings.TrimSpace(s)))
	if err := st.Validate(); err != nil {
		return "", err
	}
	return st.Default(), nil
}

// UpgradePolicy decides which candidates are offered.
type UpgradePolicy string

const (
	// PolicyUpgradeOnly offers a candidate only if it is newer than the
	// installed version.
	PolicyUpgradeOnly UpgradePolicy = "upgrade-only"
	// PolicyAlwaysOffer offers any selected candidate, even the installed
	// version or an older one.
	PolicyAlwaysOffer UpgradePolicy = "always-offer"
)

// AllUpgradePolicies returns all valid policies.
func AllUpgradePolicies() []UpgradePolicy {
	return []UpgradePolicy{PolicyUpgradeOnly, PolicyAlwaysOffer}
}

// Validate checks if the UpgradePolicy is a valid value.
// Empty is valid and means upgrade-only.
func (p UpgradePolicy) Validate() error {
	switch p {
	case PolicyUpgradeOnly, PolicyAlwaysOffer, "":
		return nil
	default:
		return fmt.Errorf("invalid policy '%s' (must be upgrade-only or always-offer)", p)
	}
}

// String returns the string representation of the UpgradePolicy.
func (p UpgradePolicy) String() string {
	return string(p)
}

// AlwaysOffer returns true if candidates are offered regardless of version.
func (p UpgradePolicy) AlwaysOffer() bool {
	return p == PolicyAlwaysOffer
}

// Default returns PolicyUpgradeOnly if empty, otherwise the current policy.
func (p UpgradePolicy) Default() UpgradePolicy {
	if p == "" {
		return PolicyUpgradeOnly
	}
	return p
}

// ParseUpgradePolicy parses a string into an UpgradePolicy.
func ParseUpgradePolicy(s string) (UpgradePolicy, error) {
	p := UpgradePolicy(strings.ToLower(strings.TrimSpace(s)))
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p.Default(), nil
}

// Mode selects what a swapup invocation does.
type Mode string

const (
	ModeInstall     Mode = "install"
	ModeUninstall   Mode = "uninstall"
	ModeUpdate      Mode = "update"
	ModeApplyUpdate Mode = "apply-update"
	ModeCleanup     Mode = "cleanup"
)

// AllModes returns all valid modes.
func AllModes() []Mode {
	return []Mode{ModeInstall, ModeUninstall, ModeUpdate, ModeApplyUpdate, ModeCleanup}
}

// Validate checks if the Mode is a valid value.
func (m Mode) Validate() error {
	switch m {
	case ModeInstall, ModeUninstall, ModeUpdate, ModeApplyUpdate, ModeCleanup:
		return nil
	case "":
		return fmt.Errorf("mode is required")
	default:
		return fmt.Errorf("invalid mode '%s' (must be install, uninstall, update, apply-update, or cleanup)", m)
	}
}

// String returns the string representation of the Mode.
func (m Mode) String() string {
	return string(m)
}

// ParseMode parses a string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(s))
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

// OutputFormat is how command results are printed.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// Validate checks if the OutputFormat is a valid value.
func (f OutputFormat) Validate() error {
	switch f {
	case OutputText, OutputJSON, OutputYAML:
		return nil
	default:
		return fmt.Errorf("invalid output format '%s' (must be text, json, or yaml)", f)
	}
}

// String returns the string representation of the OutputFormat.
func (f OutputFormat) String() string {
	return string(f)
}

// ParseOutputFormat parses a string into an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(s))
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f, nil
}
