package models

// FitRecord is one fitted source. Pointer fields are omitted when the value
// does not apply to the mode or could not be determined.
type FitRecord struct {
	Source string `json:"source"`
	Mode   string `json:"mode"`
	Alias  string `json:"alias,omitempty"`

	T1      float64  `json:"t1"`
	T1Error *float64 `json:"t1_error,omitempty"`
	A       float64  `json:"a"`
	AError  *float64 `json:"a_error,omitempty"`
	Y0      *float64 `json:"y0,omitempty"`
	Y0Error *float64 `json:"y0_error,omitempty"`
	FixedY0 *float64 `json:"fixed_y0,omitempty"`

	RSquared   float64 `json:"r_squared"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
	Flag       string  `json:"flag,omitempty"`
}

// FitResponse is returned by POST /api/v1/fit.
type FitResponse struct {
	Record FitRecord `json:"record"`
	// Attempts lists amplitude aliases that failed before the chosen one.
	Attempts []AttemptInfo `json:"attempts,omitempty"`
	Cached   bool          `json:"cached"`
}

type AttemptInfo struct {
	Alias string `json:"alias"`
	Error string `json:"error"`
}

// BatchResponse is returned by POST /api/v1/batch.
type BatchResponse struct {
	RunID   string          `json:"run_id"`
	Mode    string          `json:"mode"`
	Digest  string          `json:"digest"`
	Records []FitRecord     `json:"records"`
	Skipped []SkippedSource `json:"skipped,omitempty"`
	Summary SummaryInfo     `json:"summary"`
}

type SkippedSource struct {
	Source  string `json:"source"`
	Reason  string `json:"reason"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// SummaryInfo condenses the batch statistics.
type SummaryInfo struct {
	Recorded     int      `json:"recorded"`
	Skipped      int      `json:"skipped"`
	NotConverged int      `json:"not_converged"`
	T1           StatInfo `json:"t1"`
	A            StatInfo `json:"a"`
	RSquared     StatInfo `json:"r_squared"`
}

type StatInfo struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// ModeInfo describes a fit mode for GET /api/v1/modes.
type ModeInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
}

type ModesResponse struct {
	Modes   []ModeInfo `json:"modes"`
	Presets []string   `json:"presets"`
	// DefaultConfig is the YAML used when a request carries none.
	DefaultConfig string `json:"default_config"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
