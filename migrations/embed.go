// Package migrations embeds the SQL migration files for the search core schema
// and exposes them through io/fs, so cmd/migrator and test setup can source
// migrations without any external file dependency at deploy time.
package migrations

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Set provides a validated view over the embedded migration files.
type Set struct {
	fs        fs.FS
	checksums map[string]string // filename -> checksum for integrity checking
}

// Info contains parsed information about a migration file.
type Info struct {
	Sequence  int
	Name      string
	Direction string // "up" or "down"
	Filename  string
}

//go:embed *.sql
var embedded embed.FS

// filenameRegex matches 0001_migration_name.up.sql or 0001_migration_name.down.sql.
var filenameRegex = regexp.MustCompile(`^(\d{4})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// FS returns the embedded filesystem containing all migration files, rooted
// at the migrations directory (suitable for golang-migrate's iofs source).
func FS() fs.FS {
	return embedded
}

// New creates a Set over the given filesystem. Pass nil to use the embedded
// default.
func New(filesystem fs.FS) *Set {
	if filesystem == nil {
		filesystem = embedded
	}

	return &Set{
		fs:        filesystem,
		checksums: make(map[string]string),
	}
}

// List returns all migration files conforming to the naming standard
// 0001_name.(up|down).sql, sorted lexicographically.
func (s *Set) List() ([]string, error) {
	entries, err := fs.ReadDir(s.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if filepath.Ext(filename) == ".sql" && filenameRegex.MatchString(filename) {
			files = append(files, filename)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Validate performs filename, up/down pairing, and sequence validation of
// the embedded migration set, then records a SHA-256 checksum of each file
// in s.checksums. The checksums are not compared against earlier values.
func (s *Set) Validate() error {
	files, err := s.List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	if err := s.validateFilenames(files); err != nil {
		return err
	}

	if err := s.validatePairing(files); err != nil {
		return err
	}

	if err := s.validateSequence(files); err != nil {
		return err
	}

	for _, file := range files {
		content, err := s.Content(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		s.checksums[file] = checksum(content)
	}

	return nil
}

// Content returns the raw content of a specific embedded migration file.
func (s *Set) Content(filename string) ([]byte, error) {
	return fs.ReadFile(s.fs, filename)
}

func (s *Set) parse(filename string) (*Info, error) {
	matches := filenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return nil, fmt.Errorf(
			"invalid migration filename format: %s (expected: 0001_name.up.sql or 0001_name.down.sql)",
			filename,
		)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number in filename %s: %w", filename, err)
	}

	return &Info{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

func (s *Set) validateFilenames(files []string) error {
	for _, file := range files {
		if _, err := s.parse(file); err != nil {
			return fmt.Errorf("filename validation failed for %s: %w", file, err)
		}
	}

	return nil
}

func (s *Set) validatePairing(files []string) error {
	byKey := make(map[string]map[string]*Info)

	for _, file := range files {
		info, err := s.parse(file)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%04d_%s", info.Sequence, info.Name)
		if byKey[key] == nil {
			byKey[key] = make(map[string]*Info)
		}

		byKey[key][info.Direction] = info
	}

	for key, directions := range byKey {
		if _, hasUp := directions["up"]; !hasUp {
			return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
		}

		if _, hasDown := directions["down"]; !hasDown {
			return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
		}
	}

	return nil
}

func (s *Set) validateSequence(files []string) error {
	seen := make(map[int]bool)

	for _, file := range files {
		info, err := s.parse(file)
		if err != nil {
			return err
		}

		seen[info.Sequence] = true
	}

	var sequences []int
	for seq := range seen {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	if len(sequences) == 0 {
		return nil
	}

	if sequences[0] != 1 {
		return fmt.Errorf("migration sequence should start with 0001, but found %04d", sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		expected := sequences[i-1] + 1
		if sequences[i] != expected {
			return fmt.Errorf("gap in migration sequence: expected %04d, found %04d", expected, sequences[i])
		}
	}

	return nil
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}
