package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileDBConfig describes the on-disk layout of the tiers: where every tier
// lives, how its file names are built from key fields and how its table paths
// are built from a table identifier.
type FileDBConfig struct {
	DataDir     string              `yaml:"data_dir" json:"data_dir"`
	Tiers       []string            `yaml:"tiers" json:"tiers"`
	TierDirs    map[string]string   `yaml:"tier_dirs" json:"tier_dirs"`
	FileFormat  map[string]string   `yaml:"file_format" json:"file_format"`
	TableFormat map[string]string   `yaml:"table_format" json:"table_format"`
	Tables      map[string][]string `yaml:"tables,omitempty" json:"tables,omitempty"`
}

func (c *FileDBConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		DataDir     string              `yaml:"data_dir"`
		Tiers       []string            `yaml:"tiers"`
		TierDirs    yaml.Node           `yaml:"tier_dirs"`
		FileFormat  map[string]string   `yaml:"file_format"`
		TableFormat map[string]string   `yaml:"table_format"`
		Tables      map[string][]string `yaml:"tables"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.DataDir = raw.DataDir
	c.Tiers = raw.Tiers
	c.FileFormat = raw.FileFormat
	c.TableFormat = raw.TableFormat
	c.Tables = raw.Tables
	c.TierDirs = map[string]string{}
	if raw.TierDirs.Kind == yaml.MappingNode {
		var ordered []string
		for i := 0; i+1 < len(raw.TierDirs.Content); i += 2 {
			tier := raw.TierDirs.Content[i].Value
			c.TierDirs[tier] = raw.TierDirs.Content[i+1].Value
			ordered = append(ordered, tier)
		}
		if len(c.Tiers) == 0 {
			c.Tiers = ordered
		}
	}
	return nil
}

func LoadFileDBConfig(filename string) (*FileDBConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseFileDBConfig(data)
}

func ParseFileDBConfig(data []byte) (*FileDBConfig, error) {
	var config FileDBConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *FileDBConfig) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("%w: no tiers defined", ErrConfiguration)
	}
	for _, tier := range c.Tiers {
		if _, ok := c.FileFormat[tier]; !ok {
			return fmt.Errorf("%w: tier %s has no file_format", ErrConfiguration, tier)
		}
	}
	return nil
}
