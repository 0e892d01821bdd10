package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedisct1/go-minisign"
	log "github.com/sirupsen/logrus"
)

const (
	maxChecksumBytes  = 1 << 20
	maxSignatureBytes = 64 << 10

	// SignatureSuffix is appended to an asset name to find its minisign signature
	SignatureSuffix = ".minisig"
)

// Verifier checks a downloaded artifact against the checksum list and
// signature published with its release. Both checks are optional.
type Verifier struct {
	fetcher interface {
		FetchSmall(ctx context.Context, url string, limit int64) ([]byte, error)
	}

	// ChecksumAsset is the name of a sha256sum-style list in the release
	ChecksumAsset string
	// MinisignKeyFile is the path to a minisign public key
	MinisignKeyFile string
}

// NewVerifier creates a verifier that fetches checksum lists and
// signatures through r.
func NewVerifier(r *Resolver, checksumAsset, minisignKeyFile string) *Verifier {
	return &Verifier{
		fetcher:         r,
		ChecksumAsset:   checksumAsset,
		MinisignKeyFile: minisignKeyFile,
	}
}

// Enabled reports whether any check is configured
func (v *Verifier) Enabled() bool {
	return v != nil && (v.ChecksumAsset != "" || v.MinisignKeyFile != "")
}

// Verify checks the artifact at path that was downloaded for c.
func (v *Verifier) Verify(ctx context.Context, c *Candidate, path string) error {
	if !v.Enabled() {
		return nil
	}

	if v.ChecksumAsset != "" {
		list, ok := c.Release.FindAsset(v.ChecksumAsset)
		if !ok {
			return Errorf(KindIntegrity, "verify", "release %s has no checksum asset %q", c.Release.TagName, v.ChecksumAsset)
		}
		data, err := v.fetcher.FetchSmall(ctx, list.DownloadURL, maxChecksumBytes)
		if err != nil {
			return NewError(KindIntegrity, "verify", fmt.Errorf("fetch checksums: %w", err))
		}
		expected, err := ExtractChecksum(data, c.Asset.Name)
		if err != nil {
			return NewError(KindIntegrity, "verify", err)
		}
		if err := VerifySHA256(path, expected); err != nil {
			return err
		}
		log.Debugf("checksum of %s verified", path)
	}

	if v.MinisignKeyFile != "" {
		sigAsset, ok := c.Release.FindAsset(c.Asset.Name + SignatureSuffix)
		if !ok {
			return Errorf(KindIntegrity, "verify", "release %s has no signature for %s", c.Release.TagName, c.Asset.Name)
		}
		sig, err := v.fetcher.FetchSmall(ctx, sigAsset.DownloadURL, maxSignatureBytes)
		if err != nil {
			return NewError(KindIntegrity, "verify", fmt.Errorf("fetch signature: %w", err))
		}
		if err := VerifyMinisign(path, sig, v.MinisignKeyFile); err != nil {
			return err
		}
		log.Debugf("signature of %s verified", path)
	}

	return nil
}

// ExtractChecksum finds the sha256 digest for assetName in a checksum list.
// A list holding a single bare digest applies to any asset.
func ExtractChecksum(data []byte, assetName string) (string, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("checksum file is empty")
	}
	if isSHA256Hex(text) {
		return strings.ToLower(text), nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !isSHA256Hex(fields[0]) {
			continue
		}
		// sha256sum marks binary mode with a leading '*'
		name := filepath.Base(strings.TrimPrefix(fields[len(fields)-1], "*"))
		if strings.EqualFold(name, assetName) {
			return strings.ToLower(fields[0]), nil
		}
	}

	return "", fmt.Errorf("checksum for %s not found", assetName)
}

// VerifySHA256 compares the file's digest with expected (hex).
func VerifySHA256(path, expected string) error {
	f, err := os.Open(path)
	if err != nil {
		return NewError(KindIO, "verify", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return NewError(KindIO, "verify", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, expected) {
		return Errorf(KindIntegrity, "verify", "checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

// VerifyMinisign checks the file against a minisign signature using the
// public key stored in keyFile.
func VerifyMinisign(path string, sig []byte, keyFile string) error {
	pubKey, err := minisign.NewPublicKeyFromFile(keyFile)
	if err != nil {
		return NewError(KindIntegrity, "verify", fmt.Errorf("read minisign pubkey: %w", err))
	}
	signature, err := minisign.DecodeSignature(string(sig))
	if err != nil {
		return NewError(KindIntegrity, "verify", fmt.Errorf("read minisign signature: %w", err))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return NewError(KindIO, "verify", err)
	}

	valid, err := pubKey.Verify(content, signature)
	if err != nil {
		return NewError(KindIntegrity, "verify", fmt.Errorf("minisign: %w", err))
	}
	if !valid {
		return Errorf(KindIntegrity, "verify", "minisign: signature verification failed")
	}
	return nil
}

func isSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
