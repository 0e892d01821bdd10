package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of an updater file.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	case FormatJSON:
		return "json"
	}
	return "unknown"
}

// detectFormat trusts the file extension and falls back to guessFormat for
// extensionless updater files such as one shipped next to a portable binary.
func detectFormat(path string, content []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}
	return guessFormat(content)
}

// guessFormat decides from the first line that is not blank or a comment.
// An updater file is always a table, so a leading '{' is JSON and a leading
// '[' is a TOML section header.
func guessFormat(content []byte) Format {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "{"):
			return FormatJSON
		case strings.HasPrefix(line, "["):
			return FormatTOML
		}

		eq := strings.Index(line, "=")
		colon := strings.Index(line, ":")
		switch {
		case eq > 0 && (colon < 0 || eq < colon):
			return FormatTOML
		case colon > 0:
			return FormatYAML
		}
		return FormatUnknown
	}
	return FormatUnknown
}

// envRef matches ${NAME} and ${NAME:-fallback}.
var envRef = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// ExpandEnv substitutes ${NAME} and ${NAME:-fallback} references. An unset
// or empty variable takes the fallback when one is given and expands to
// nothing otherwise.
func ExpandEnv(content []byte) []byte {
	return envRef.ReplaceAllFunc(content, func(ref []byte) []byte {
		m := envRef.FindSubmatch(ref)
		if value := os.Getenv(string(m[1])); value != "" {
			return []byte(value)
		}
		return m[2]
	})
}

// parse decodes an updater file after expanding environment references.
func parse(content []byte, format Format) (*Config, error) {
	content = ExpandEnv(content)

	var cfg Config
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(content, &cfg)
	case FormatTOML:
		err = toml.Unmarshal(content, &cfg)
	case FormatJSON:
		err = json.Unmarshal(content, &cfg)
	default:
		return nil, fmt.Errorf("unrecognized updater file format")
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s updater file: %w", format, err)
	}
	return &cfg, nil
}
