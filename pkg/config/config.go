// Package config holds the configuration surface for databases and
// collections: file placement, the codec/pipeline knobs, and the
// behavior enums that govern duplicate-key, missing-key, and failure
// handling. Options are plain structs so they round-trip through YAML
// the same way the rest of the pack's tooling configuration does.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ssargent/slotkv/pkg/codec"
	"github.com/ssargent/slotkv/pkg/metrics"
	"github.com/ssargent/slotkv/pkg/pipeline"
	"github.com/ssargent/slotkv/pkg/xcrypto"
)

// nameRe is the character class both database and collection names must
// satisfy: letters, digits, underscore, and space.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_ ]+$`)

// ValidName reports whether name is non-empty and uses only the allowed
// character class.
func ValidName(name string) bool {
	return name != "" && nameRe.MatchString(name)
}

// DuplicateKeyBehavior governs add/bulkAdd's response to an already-live
// key.
type DuplicateKeyBehavior uint8

const (
	FailWithError DuplicateKeyBehavior = iota
	Upsert
	ReturnFalse
)

// MissingKeyBehavior governs update/remove's response to a key that is
// not live.
type MissingKeyBehavior uint8

const (
	MissingFailWithError MissingKeyBehavior = iota
	MissingReturnFalse
)

// ErrorBehavior selects whether a governed error class surfaces to the
// caller (Raise) or is swallowed into a boolean false (SoftFail).
type ErrorBehavior uint8

const (
	Raise ErrorBehavior = iota
	SoftFail
)

// DatabaseOptions configures a Database: where its collections live on
// disk, and the defaults new collections inherit unless overridden.
type DatabaseOptions struct {
	BaseDirectory string `yaml:"base_directory"`
	DatabaseName  string `yaml:"database_name"`

	// IsReadOnlyEnabled, when true, forces every collection opened under
	// this database read-only regardless of its own CollectionOptions,
	// and refuses to open a collection whose file does not exist yet.
	IsReadOnlyEnabled bool `yaml:"is_read_only_enabled"`
}

// Validate checks DatabaseName against the allowed character class.
func (o DatabaseOptions) Validate() error {
	if !ValidName(o.DatabaseName) {
		return fmt.Errorf("config: invalid database name %q: must be non-empty and match [A-Za-z0-9_ ]+", o.DatabaseName)
	}
	return nil
}

// CollectionOptions configures one collection.
type CollectionOptions struct {
	BaseDirectory string `yaml:"base_directory"`
	DatabaseName  string `yaml:"database_name"`
	FileExtension string `yaml:"file_extension"`

	Serializer             codec.Serializer `yaml:"serializer"`
	BufferMode              pipeline.Mode   `yaml:"buffer_mode"`
	MaxDegreeOfParallelism  int64           `yaml:"max_degree_of_parallelism"`

	IsMemoryOnlyEnabled     bool `yaml:"is_memory_only_enabled"`
	IsReadOnlyEnabled       bool `yaml:"is_read_only_enabled"`
	IsBufferedWritesEnabled bool `yaml:"is_buffered_writes_enabled"`

	IsEncryptionEnabled bool             `yaml:"is_encryption_enabled"`
	EncryptionPassword  string           `yaml:"-"`
	EncryptionAlgorithm xcrypto.Algorithm `yaml:"encryption_algorithm"`

	IsCompressionEnabled bool `yaml:"is_compression_enabled"`

	AddDuplicateKeyBehavior     DuplicateKeyBehavior `yaml:"add_duplicate_key_behavior"`
	BulkAddDuplicateKeyBehavior DuplicateKeyBehavior `yaml:"bulk_add_duplicate_key_behavior"`
	UpdateKeyNotFoundBehavior   MissingKeyBehavior   `yaml:"update_key_not_found_behavior"`
	RemoveKeyNotFoundBehavior   MissingKeyBehavior   `yaml:"remove_key_not_found_behavior"`

	StorageFailureBehavior        ErrorBehavior `yaml:"storage_failure_behavior"`
	SerializationFailureBehavior  ErrorBehavior `yaml:"serialization_failure_behavior"`
	DeserializationFailureBehavior ErrorBehavior `yaml:"deserialization_failure_behavior"`

	// GeneratedFileNameCreationFunction maps a collection name to the file
	// name stem used on disk, when FileExtension alone is not enough
	// (e.g. sanitizing a value-type name). Defaults to the identity
	// function.
	GeneratedFileNameCreationFunction func(collectionName string) string `yaml:"-"`

	// Metrics, when set, receives operation/flush/pipeline-depth/reclaim
	// observations for the collection. Never persisted.
	Metrics *metrics.Collector `yaml:"-"`
}

// Default returns a CollectionOptions with the spec's reference defaults:
// BufferMode Disabled, file extension "slotkv", JsonUtf8 serializer, all
// behaviors raising.
func Default(base DatabaseOptions, collectionName string) CollectionOptions {
	return CollectionOptions{
		BaseDirectory:          base.BaseDirectory,
		DatabaseName:           base.DatabaseName,
		FileExtension:          "slotkv",
		Serializer:             codec.JSONUTF8,
		BufferMode:             pipeline.Disabled,
		MaxDegreeOfParallelism: 8,
		EncryptionAlgorithm:    xcrypto.SHA256,
	}
}

// FileName returns the on-disk path for a collection named name:
// <BaseDirectory>/<DatabaseName>/<name>.<FileExtension>.
func (o CollectionOptions) FileName(name string) string {
	stem := name
	if o.GeneratedFileNameCreationFunction != nil {
		stem = o.GeneratedFileNameCreationFunction(name)
	}
	return filepath.Join(o.BaseDirectory, o.DatabaseName, stem+"."+o.FileExtension)
}

// Validate checks the options a collection cannot safely open without:
// name shape and encryption-password presence.
func (o CollectionOptions) Validate(collectionName string) error {
	if !ValidName(o.DatabaseName) {
		return fmt.Errorf("config: invalid database name %q: must be non-empty and match [A-Za-z0-9_ ]+", o.DatabaseName)
	}
	if !ValidName(collectionName) {
		return fmt.Errorf("config: invalid collection name %q: must be non-empty and match [A-Za-z0-9_ ]+", collectionName)
	}
	if o.IsEncryptionEnabled && o.EncryptionPassword == "" {
		return fmt.Errorf("config: encryption enabled without a password")
	}
	return nil
}

// Load reads a CollectionOptions (minus the EncryptionPassword, which is
// never persisted) from a YAML file.
func Load(path string) (CollectionOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CollectionOptions{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var opts CollectionOptions
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return CollectionOptions{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return opts, nil
}

// Save writes opts to path as YAML, creating its directory if needed. The
// encryption password is deliberately excluded from the marshaled form.
func Save(opts CollectionOptions, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("config: create directory for %s: %w", path, err)
	}
	data, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// GenerateSecureKey returns a random hex-encoded key of length bytes,
// suitable as a generated EncryptionPassword when a caller wants one
// rather than supplying their own.
func GenerateSecureKey(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("config: generate secure key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
