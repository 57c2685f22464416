package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
)

// File mirrors config.toml for `etabext init`.
type File struct {
	Etabs      EtabsSection      `toml:"etabs"`
	Project    ProjectSection    `toml:"project"`
	Diff       DiffSection       `toml:"diff"`
	Retention  RetentionSection  `toml:"retention"`
	Embeddings EmbeddingsSection `toml:"embeddings"`
	Search     SearchSection     `toml:"search"`
	Log        LogSection        `toml:"log"`
}

type EtabsSection struct {
	Executable    string `toml:"executable"`
	CLI           string `toml:"cli"`
	ExportTimeout string `toml:"export_timeout"`
}

type ProjectSection struct {
	DesignFile    string `toml:"design_file"`
	DefaultAuthor string `toml:"default_author"`
}

type DiffSection struct {
	Context int `toml:"context"`
}

type RetentionSection struct {
	Days             int      `toml:"days"`
	PreserveBranches []string `toml:"preserve_branches"`
}

type EmbeddingsSection struct {
	Enabled   bool   `toml:"enabled"`
	Model     string `toml:"model"`
	OllamaURL string `toml:"ollama_url"`
}

type SearchSection struct {
	KeywordWeight  float64 `toml:"keyword_weight"`
	SemanticWeight float64 `toml:"semantic_weight"`
}

type LogSection struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultFile returns the configuration written by `etabext init`.
func DefaultFile() File {
	return File{
		Etabs:      EtabsSection{Executable: "ETABS.exe", CLI: "etab-cli", ExportTimeout: "5m"},
		Project:    ProjectSection{DesignFile: "model.edb"},
		Diff:       DiffSection{Context: 3},
		Retention:  RetentionSection{Days: 90, PreserveBranches: []string{"main"}},
		Embeddings: EmbeddingsSection{Model: "nomic-embed-text", OllamaURL: "http://localhost:11434"},
		Search:     SearchSection{KeywordWeight: 0.3, SemanticWeight: 0.7},
		Log:        LogSection{Level: "info"},
	}
}

// Encode renders f as TOML.
func (f File) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(f); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses TOML produced by Encode.
func Decode(data []byte) (File, error) {
	var f File
	if _, err := toml.Decode(string(data), &f); err != nil {
		return File{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return f, nil
}
