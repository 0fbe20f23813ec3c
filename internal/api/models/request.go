package models

// FitRequest is the body of POST /api/v1/fit.
type FitRequest struct {
	Source string    `json:"source" binding:"required"`
	Times  []float64 `json:"times" binding:"required"`
	Values []float64 `json:"values" binding:"required"`
	// Config is an optional YAML document in the same shape as the CLI config
	// file. profile_file is not accepted over HTTP.
	Config string `json:"config,omitempty"`
	// Mode overrides fit_mode from Config ("free" or "fixed").
	Mode string `json:"mode,omitempty"`
	// Preset overrides preset from Config ("as", "as40", "dis").
	Preset string `json:"preset,omitempty"`
}

// BatchQuery holds the query parameters of POST /api/v1/batch. The files and
// the optional config travel as multipart fields "files" and "config".
type BatchQuery struct {
	Format string `form:"format,omitempty"` // "json" (default) or "csv"
	Mode   string `form:"mode,omitempty"`
	Preset string `form:"preset,omitempty"`
}
