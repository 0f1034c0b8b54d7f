package main

import (
	"fmt"
	"os"

	sceneio "github.com/flywave/go-sceneio"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type Config struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	// Format forces the output codec; empty means by extension.
	Format string `yaml:"format"`

	// Preset names a built-in correction; Correction overrides it field
	// by field when present.
	Preset     string              `yaml:"preset"`
	Correction *sceneio.Correction `yaml:"correction"`

	CombineSameMaterial bool `yaml:"combine_same_material"`
	Overwrite           bool `yaml:"overwrite"`

	MergeMeshes     bool   `yaml:"merge_meshes"`
	SectionMerge    string `yaml:"section_merge"` // keep | same-material | all
	Normalize       bool   `yaml:"normalize"`
	ImportMaterials bool   `yaml:"import_materials"`

	Log LogConfig `yaml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		SectionMerge:    "keep",
		ImportMaterials: true,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) correction() (sceneio.Correction, error) {
	if c.Correction != nil {
		return *c.Correction, nil
	}
	corr, ok := sceneio.CorrectionPreset(c.Preset)
	if !ok {
		return sceneio.Correction{}, fmt.Errorf("unknown correction preset %q", c.Preset)
	}
	return corr, nil
}

func (c *Config) sectionMerge() (sceneio.SectionMergeMethod, error) {
	switch c.SectionMerge {
	case "", "keep":
		return sceneio.SectionKeepSeparate, nil
	case "same-material":
		return sceneio.SectionMergeSameMaterial, nil
	case "all":
		return sceneio.SectionMergeAll, nil
	}
	return 0, fmt.Errorf("unknown section merge %q", c.SectionMerge)
}
