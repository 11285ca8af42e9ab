package model

import "time"

// ResultsExport is the top-level JSON structure for the export subcommand.
type ResultsExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	NumPrompts int          `json:"num_prompts"`
	Results    []TestDetail `json:"results"`
}
