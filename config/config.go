package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrUnsupported   = errors.New("unsupported operation")
)

// TCMCols names the physical TCM columns holding each logical role.
type TCMCols struct {
	ChildIdx  string `yaml:"child_idx" json:"child_idx"`
	ParentTb  string `yaml:"parent_tb" json:"parent_tb"`
	ParentIdx string `yaml:"parent_idx" json:"parent_idx"`
}

type LevelConfig struct {
	Name    string   `yaml:"-" json:"name"`
	Tiers   []string `yaml:"tiers" json:"tiers"`
	Parent  string   `yaml:"parent,omitempty" json:"parent,omitempty"`
	Child   string   `yaml:"child,omitempty" json:"child,omitempty"`
	TCMCols *TCMCols `yaml:"tcm_cols,omitempty" json:"tcm_cols,omitempty"`
	// Priority orders cut evaluation, highest first: parent P, child P+1,
	// TCM level P+2.
	Priority int `yaml:"-" json:"priority"`
}

func (l *LevelConfig) IsTCM() bool {
	return l.Parent != "" || l.Child != ""
}

type OutputConfig struct {
	Format     string   `yaml:"format" json:"format"`
	MergeFiles bool     `yaml:"merge_files" json:"merge_files"`
	Columns    []string `yaml:"columns" json:"columns"`
}

// ChannelMap maps a channel name to its attributes, e.g. {"system": "geds", "ch": 3}.
type ChannelMap map[string]map[string]any

type LoaderConfig struct {
	DataDir    string
	Levels     []*LevelConfig
	ChannelMap ChannelMap
	Cuts       map[string]string
	Output     *OutputConfig

	channelMapPath string
	levels         map[string]*LevelConfig
}

func (c *LoaderConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		DataDir    string        `yaml:"data_dir"`
		Levels     yaml.Node     `yaml:"levels"`
		ChannelMap yaml.Node     `yaml:"channel_map"`
		Cuts       yaml.Node     `yaml:"cuts"`
		Output     *OutputConfig `yaml:"output"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.DataDir = raw.DataDir
	c.Output = raw.Output

	if raw.Levels.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: levels must be a mapping of level name to level", ErrConfiguration)
	}
	for i := 0; i+1 < len(raw.Levels.Content); i += 2 {
		level := &LevelConfig{}
		if err := raw.Levels.Content[i+1].Decode(level); err != nil {
			return fmt.Errorf("level %s: %w", raw.Levels.Content[i].Value, err)
		}
		level.Name = raw.Levels.Content[i].Value
		c.Levels = append(c.Levels, level)
	}

	switch raw.ChannelMap.Kind {
	case yaml.MappingNode:
		if err := raw.ChannelMap.Decode(&c.ChannelMap); err != nil {
			return fmt.Errorf("channel_map: %w", err)
		}
	case yaml.ScalarNode:
		c.channelMapPath = raw.ChannelMap.Value
	case 0:
	default:
		slog.Warn("channel map must be a mapping or a path to a JSON file")
	}

	switch raw.Cuts.Kind {
	case yaml.MappingNode:
		if err := raw.Cuts.Decode(&c.Cuts); err != nil {
			return fmt.Errorf("%w: cuts must map level to expression: %v", ErrConfiguration, err)
		}
	case yaml.SequenceNode:
		return fmt.Errorf("%w: cuts given as a list", ErrUnsupported)
	case 0:
	default:
		return fmt.Errorf("%w: cuts must map level to expression", ErrConfiguration)
	}
	return nil
}

// LoadLoaderConfig reads a YAML or JSON loader configuration. A channel map
// given as a path is resolved against the configuration's directory.
func LoadLoaderConfig(filename string) (*LoaderConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseLoaderConfig(data, filepath.Dir(filename))
}

func ParseLoaderConfig(data []byte, baseDir string) (*LoaderConfig, error) {
	var config LoaderConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	if config.channelMapPath != "" {
		name := config.channelMapPath
		if !filepath.IsAbs(name) {
			name = filepath.Join(baseDir, name)
		}
		chmap, err := LoadChannelMap(name)
		if err != nil {
			return nil, err
		}
		config.ChannelMap = chmap
	}
	if err := config.Finalize(); err != nil {
		return nil, err
	}
	return &config, nil
}

func LoadChannelMap(filename string) (ChannelMap, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("channel map: %w", err)
	}
	res := ChannelMap{}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("channel map %s: %w", filename, err)
	}
	return res, nil
}

// Finalize checks the level graph and derives the cut priorities. It must be
// called on configurations built in code before they are used.
func (c *LoaderConfig) Finalize() error {
	c.levels = map[string]*LevelConfig{}
	if len(c.Levels) == 0 {
		return fmt.Errorf("%w: no levels defined", ErrConfiguration)
	}
	for _, level := range c.Levels {
		if _, ok := c.levels[level.Name]; ok {
			return fmt.Errorf("%w: level %s defined twice", ErrConfiguration, level.Name)
		}
		if len(level.Tiers) == 0 {
			return fmt.Errorf("%w: level %s has no tiers", ErrConfiguration, level.Name)
		}
		level.Priority = 0
		if level.IsTCM() {
			parent, okParent := c.levels[level.Parent]
			child, okChild := c.levels[level.Child]
			if !okParent || !okChild {
				return fmt.Errorf("%w: TCM level %s needs parent and child levels defined before it",
					ErrConfiguration, level.Name)
			}
			child.Priority = parent.Priority + 1
			level.Priority = parent.Priority + 2
			if level.TCMCols == nil {
				slog.Warn("TCM levels need to specify the TCM lookup columns", "level", level.Name)
			}
		}
		c.levels[level.Name] = level
	}
	for level := range c.Cuts {
		if _, ok := c.levels[level]; !ok {
			return fmt.Errorf("%w: cut on unknown level %s", ErrConfiguration, level)
		}
	}
	return nil
}

func (c *LoaderConfig) Level(name string) (*LevelConfig, bool) {
	level, ok := c.levels[name]
	return level, ok
}

func (c *LoaderConfig) LevelNames() []string {
	res := make([]string, len(c.Levels))
	for i, level := range c.Levels {
		res[i] = level.Name
	}
	return res
}

// LowestLevel is the first level in configuration order.
func (c *LoaderConfig) LowestLevel() *LevelConfig {
	return c.Levels[0]
}

func (c *LoaderConfig) TCMLevels() []string {
	var res []string
	for _, level := range c.Levels {
		if level.IsTCM() {
			res = append(res, level.Name)
		}
	}
	return res
}
