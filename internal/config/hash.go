package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name, stored next to the config file.
const ChecksumFile = ".checksums"

// ErrNoChecksums reports a config directory without a manifest.
var ErrNoChecksums = errors.New("checksums file not found (run 'clibridge config lock')")

// ChecksumManifest maps locked files, relative to the config directory and
// slash-separated, to their BLAKE3 hashes.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// HashUpdateFileResult captures checksum generation outcome for one file.
type HashUpdateFileResult struct {
	Filename string
	Path     string
	Exists   bool
	Hash     string
}

// HashUpdateReport captures checksum generation details for a config directory.
type HashUpdateReport struct {
	ConfigDir    string
	ChecksumPath string
	Written      bool
	Files        []HashUpdateFileResult
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}
	return nil
}

// LockedFiles returns the manifest keys for the files a lock covers: the
// config file itself and the spec document.
func (c *Config) LockedFiles() []string {
	dir := c.Dir()
	var names []string
	for _, p := range []string{c.Path, c.Program.Spec} {
		if p == "" {
			continue
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = p
		}
		names = append(names, filepath.ToSlash(rel))
	}
	return names
}

// Lock hashes the locked files of c and writes the manifest. With dryRun
// set the report is computed but nothing is written.
func Lock(c *Config, dryRun bool) (*HashUpdateReport, error) {
	return GenerateChecksumsWithReport(c.Dir(), c.LockedFiles(), dryRun)
}

// GenerateChecksumsWithReport computes file hashes and optionally writes .checksums.
// Missing files are reported and left out of the manifest.
func GenerateChecksumsWithReport(configDir string, files []string, dryRun bool) (*HashUpdateReport, error) {
	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string),
	}
	report := &HashUpdateReport{
		ConfigDir:    configDir,
		ChecksumPath: filepath.Join(configDir, ChecksumFile),
		Files:        make([]HashUpdateFileResult, 0, len(files)),
	}

	for _, name := range files {
		filePath := filepath.Join(configDir, filepath.FromSlash(name))
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			report.Files = append(report.Files, HashUpdateFileResult{Filename: name, Path: filePath})
			continue
		}

		hash, err := ComputeBlake3Hash(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", name, err)
		}
		manifest.Hashes[name] = hash
		report.Files = append(report.Files, HashUpdateFileResult{
			Filename: name,
			Path:     filePath,
			Exists:   true,
			Hash:     hash,
		})
	}

	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	if err := os.WriteFile(report.ChecksumPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}

// LoadChecksums reads the .checksums file from a config directory. A missing
// file yields ErrNoChecksums.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoChecksums
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// Verify checks the locked files of c against the manifest. It is a no-op
// when the config directory has no manifest.
func Verify(c *Config) error {
	return verifyLockedFiles(c)
}

func verifyLockedFiles(c *Config) error {
	dir := c.Dir()
	manifest, err := LoadChecksums(dir)
	if errors.Is(err, ErrNoChecksums) {
		return nil
	}
	if err != nil {
		return err
	}

	names := c.LockedFiles()
	sort.Strings(names)
	for _, name := range names {
		expected, ok := manifest.Hashes[name]
		if !ok {
			return fmt.Errorf("%s has no hash in %s\n"+
				"Run: clibridge config lock --config %s", name, filepath.Join(dir, ChecksumFile), c.Path)
		}
		if err := VerifyFileHash(filepath.Join(dir, filepath.FromSlash(name)), expected); err != nil {
			return fmt.Errorf("config verification failed for %s: %w\n"+
				"If you edited this file intentionally, run: clibridge config lock --config %s", name, err, c.Path)
		}
	}
	return nil
}
