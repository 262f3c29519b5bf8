package yamlio

import (
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
)

type schemaHeader struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
}

// ValidateConfigHeader checks the schema_version/file_type header of a
// config document before the full struct is decoded, so version skew and
// foreign YAML files produce a clear error instead of zero-valued fields.
func ValidateConfigHeader(content []byte) error {
	var header schemaHeader
	if err := yamlv3.Unmarshal(content, &header); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if header.SchemaVersion < 1 {
		return fmt.Errorf("invalid schema_version %d (must be >= 1)", header.SchemaVersion)
	}
	if header.SchemaVersion > model.ConfigSchemaVersion {
		return fmt.Errorf("unsupported schema_version %d (max supported: %d)", header.SchemaVersion, model.ConfigSchemaVersion)
	}
	if header.FileType == "" {
		return fmt.Errorf("missing file_type")
	}
	if header.FileType != model.ConfigFileType {
		return fmt.Errorf("file_type mismatch: got %q, expected %q", header.FileType, model.ConfigFileType)
	}

	return nil
}

// LoadConfig reads, header-checks, decodes, and validates a rig config.
func LoadConfig(path string) (*model.Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := ValidateConfigHeader(content); err != nil {
		return nil, fmt.Errorf("config header %s: %w", path, err)
	}

	cfg := model.DefaultConfig()
	if err := yamlv3.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig stamps the schema header and writes the config atomically.
func SaveConfig(path string, cfg *model.Config) error {
	cfg.SchemaVersion = model.ConfigSchemaVersion
	cfg.FileType = model.ConfigFileType

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return AtomicWrite(path, cfg)
}
