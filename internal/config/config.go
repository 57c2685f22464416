package config

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults registers every configuration default. Called from the root
// command before the config file is read.
func Defaults() {
	viper.SetDefault("etabs.executable", "ETABS.exe")
	viper.SetDefault("etabs.cli", "etab-cli")
	viper.SetDefault("etabs.export_timeout", "5m")
	viper.SetDefault("project.design_file", "model.edb")
	viper.SetDefault("project.default_author", "")
	viper.SetDefault("diff.context", 3)
	viper.SetDefault("retention.days", 90)
	viper.SetDefault("retention.preserve_branches", []string{"main"})
	viper.SetDefault("embeddings.enabled", false)
	viper.SetDefault("embeddings.model", "nomic-embed-text")
	viper.SetDefault("embeddings.ollama_url", "http://localhost:11434")
	viper.SetDefault("search.keyword_weight", 0.3)
	viper.SetDefault("search.semantic_weight", 0.7)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")
}

// GetEtabsExecutable returns the ETABS application launched by `etabs open`
func GetEtabsExecutable() string {
	return viper.GetString("etabs.executable")
}

// GetCLIPath returns the ETABS sidecar CLI used for export and validation
func GetCLIPath() string {
	return viper.GetString("etabs.cli")
}

// GetExportTimeout returns how long an E2K export may run
func GetExportTimeout() time.Duration {
	d := viper.GetDuration("etabs.export_timeout")
	if d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// GetDesignFileName returns the working file name used inside each branch
func GetDesignFileName() string {
	name := viper.GetString("project.design_file")
	if name == "" {
		return "model.edb"
	}
	return name
}

// GetDefaultAuthor returns the author recorded when none is given
func GetDefaultAuthor() string {
	return viper.GetString("project.default_author")
}

// GetDiffContext returns the number of context lines in raw diffs
func GetDiffContext() int {
	return viper.GetInt("diff.context")
}

// GetRetentionDays returns the retention period in days
func GetRetentionDays() int {
	return viper.GetInt("retention.days")
}

// GetPreserveBranches returns branches that are never pruned
func GetPreserveBranches() []string {
	return viper.GetStringSlice("retention.preserve_branches")
}

// ShouldPreserve checks if a branch is exempt from pruning
func ShouldPreserve(branch string) bool {
	for _, preserved := range GetPreserveBranches() {
		if branch == preserved {
			return true
		}
	}
	return false
}

// GetEmbeddingsEnabled reports whether version messages are embedded on save
func GetEmbeddingsEnabled() bool {
	return viper.GetBool("embeddings.enabled")
}

// GetEmbeddingModel returns the Ollama embedding model
func GetEmbeddingModel() string {
	return viper.GetString("embeddings.model")
}

// GetOllamaURL returns the Ollama API endpoint
func GetOllamaURL() string {
	return viper.GetString("embeddings.ollama_url")
}

// GetKeywordWeight returns the keyword share of hybrid search scores
func GetKeywordWeight() float64 {
	return viper.GetFloat64("search.keyword_weight")
}

// GetSemanticWeight returns the semantic share of hybrid search scores
func GetSemanticWeight() float64 {
	return viper.GetFloat64("search.semantic_weight")
}

// GetLogLevel returns the log level name
func GetLogLevel() string {
	return viper.GetString("log.level")
}

// GetLogFile returns the log file path, empty for stderr
func GetLogFile() string {
	return viper.GetString("log.file")
}
