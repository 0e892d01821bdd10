package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/swapup/internal/archive"
)

// ValidationError represents an updater file validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the config for required fields and valid values. All
// problems are reported together.
func Validate(c *Config) error {
	var errors []string

	check := func(err error) {
		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	if c.Version != CurrentVersion {
		check(ValidationError{Field: "version", Message: fmt.Sprintf("unsupported version %d (expected %d)", c.Version, CurrentVersion)})
	}
	check(validateFeed(c.Feed))

	if err := c.Style.Validate(); err != nil {
		check(ValidationError{Field: "style", Message: err.Error()})
	}
	if err := c.Policy.Validate(); err != nil {
		check(ValidationError{Field: "policy", Message: err.Error()})
	}

	if c.Style.IsArchive() {
		for _, err := range validateArchiveTarget(c.Target) {
			check(err)
		}
	} else if len(c.Target.CleanPaths) > 0 {
		check(ValidationError{Field: "target.clean_paths", Message: "only used with archive style"})
	}

	if c.WaitTimeout < 0 {
		check(ValidationError{Field: "wait_timeout", Message: "must not be negative"})
	}

	if c.Log.Level != "" {
		if _, err := log.ParseLevel(c.Log.Level); err != nil {
			check(ValidationError{Field: "log.level", Message: err.Error()})
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateFeed(f Feed) error {
	if f.URL == "" {
		return ValidationError{Field: "feed.url", Message: "url is required"}
	}

	u, err := url.Parse(f.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ValidationError{Field: "feed.url", Message: fmt.Sprintf("invalid feed url '%s' (must be http or https)", f.URL)}
	}

	if f.Retries < 0 {
		return ValidationError{Field: "feed.retries", Message: "must not be negative"}
	}
	if f.Timeout < 0 {
		return ValidationError{Field: "feed.timeout", Message: "must not be negative"}
	}

	return nil
}

func validateArchiveTarget(t Target) []error {
	if t.Dir == "" {
		return []error{ValidationError{Field: "target.dir", Message: "dir is required for archive style"}}
	}

	root, err := filepath.Abs(t.Dir)
	if err != nil {
		return []error{ValidationError{Field: "target.dir", Message: err.Error()}}
	}

	var errs []error
	for i, p := range t.CleanPaths {
		if filepath.IsAbs(p) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("target.clean_paths[%d]", i),
				Message: fmt.Sprintf("'%s' must be relative to target.dir", p),
			})
			continue
		}
		full, err := archive.ResolveWithin(root, p)
		switch {
		case err != nil:
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("target.clean_paths[%d]", i),
				Message: err.Error(),
			})
		case full == root:
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("target.clean_paths[%d]", i),
				Message: "must not be the target directory itself",
			})
		}
	}
	return errs
}
