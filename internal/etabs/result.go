package etabs

import (
	"encoding/json"
	"fmt"
	"time"
)

// CliResult is the envelope every sidecar CLI command prints on stdout.
type CliResult[T any] struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
	Data      *T     `json:"data,omitempty"`
}

// ValidationData is returned by `validate`.
type ValidationData struct {
	EtabsInstalled     bool     `json:"etabsInstalled"`
	EtabsVersion       string   `json:"etabsVersion,omitempty"`
	FileValid          *bool    `json:"fileValid,omitempty"`
	FilePath           string   `json:"filePath,omitempty"`
	FileExists         *bool    `json:"fileExists,omitempty"`
	FileExtension      string   `json:"fileExtension,omitempty"`
	IsAnalyzed         *bool    `json:"isAnalyzed,omitempty"`
	ValidationMessages []string `json:"validationMessages"`
}

// GenerateE2KData is returned by `generate-e2k`.
type GenerateE2KData struct {
	InputFile            string   `json:"inputFile"`
	OutputFile           string   `json:"outputFile,omitempty"`
	FileExists           bool     `json:"fileExists"`
	FileExtension        string   `json:"fileExtension,omitempty"`
	OutputExists         *bool    `json:"outputExists,omitempty"`
	GenerationSuccessful *bool    `json:"generationSuccessful,omitempty"`
	FileSizeBytes        int64    `json:"fileSizeBytes,omitempty"`
	GenerationTimeMs     int64    `json:"generationTimeMs,omitempty"`
	Messages             []string `json:"messages"`
}

// SaveData is returned by `save`.
type SaveData struct {
	FilePath string   `json:"filePath"`
	Saved    bool     `json:"saved"`
	Messages []string `json:"messages"`
}

func decodeResult[T any](out []byte) (*CliResult[T], error) {
	var r CliResult[T]
	if err := json.Unmarshal(out, &r); err != nil {
		return nil, fmt.Errorf("failed to decode CLI output: %w", err)
	}
	return &r, nil
}

// NewResult builds a CliResult stamped with the current time.
func NewResult[T any](data *T, err error) CliResult[T] {
	r := CliResult[T]{
		Success:   err == nil,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
