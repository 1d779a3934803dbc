package store

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/polyroot/internal/opt"
)

// SolveConfig records how a report was produced.
// It mirrors the request fields to avoid an import cycle with the server.
type SolveConfig struct {
	Problem  string    `json:"problem"`
	Preset   string    `json:"preset"`
	Path     string    `json:"path"` // cache, stateless, fixed
	U0       []float64 `json:"u0,omitempty"`
	Params   []float64 `json:"params,omitempty"`
	AbsTol   float64   `json:"abstol"`
	MaxIters int       `json:"maxIters"`

	// OutOfPlace selects the allocating residual convention
	OutOfPlace bool `json:"outOfPlace,omitempty"`
}

// Attempt summarizes one candidate that was driven to termination.
type Attempt struct {
	Index        int            `json:"index"`
	Method       string         `json:"method"`
	Retcode      opt.ReturnCode `json:"retcode"`
	ResidualNorm float64        `json:"residualNorm"`

	// Diverged is set when the residual was not finite; ResidualNorm is then 0
	Diverged bool      `json:"diverged,omitempty"`
	Stats    opt.Stats `json:"stats"`
}

// NewAttempt summarizes a finished candidate under the given norm.
func NewAttempt(index int, sol *opt.Solution, norm opt.NormFunc) Attempt {
	a := Attempt{
		Index:   index,
		Method:  sol.Alg,
		Retcode: sol.Retcode,
		Stats:   sol.Stats,
	}
	if v := sol.ResidualNorm(norm); allFinite([]float64{v}) {
		a.ResidualNorm = v
	} else {
		a.Diverged = true
	}
	return a
}

// Report is the persisted outcome of one polyalgorithm solve.
//
// The report keeps the final iterate and residual of the selected
// candidate, not of every attempt; Attempts only carries summaries.
type Report struct {
	// ID is the unique identifier, usually the server job ID
	ID string `json:"id"`

	Config SolveConfig `json:"config"`

	// Alg is the polyalgorithm name, Method the candidate that produced U
	Alg       string `json:"alg"`
	Method    string `json:"method"`
	Candidate int    `json:"candidate"`

	U            []float64      `json:"u"`
	Resid        []float64      `json:"resid"`
	Retcode      opt.ReturnCode `json:"retcode"`
	ResidualNorm float64        `json:"residualNorm"`
	Stats        opt.Stats      `json:"stats"`

	Attempts []Attempt `json:"attempts,omitempty"`

	// Duration is the wall-clock time of the solve
	Duration time.Duration `json:"duration"`

	// Timestamp records when the report was created
	Timestamp time.Time `json:"timestamp"`
}

// ReportInfo is the listing projection of a Report.
type ReportInfo struct {
	ID           string         `json:"id"`
	Problem      string         `json:"problem"`
	Preset       string         `json:"preset"`
	Path         string         `json:"path"`
	Method       string         `json:"method"`
	Retcode      opt.ReturnCode `json:"retcode"`
	ResidualNorm float64        `json:"residualNorm"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewReport builds a report from a polyalgorithm solution.
func NewReport(id string, config SolveConfig, sol *opt.Solution, attempts []Attempt, duration time.Duration) *Report {
	method := sol.Alg
	if sol.Original != nil {
		method = sol.Original.Alg
	}
	return &Report{
		ID:           id,
		Config:       config,
		Alg:          sol.Alg,
		Method:       method,
		Candidate:    sol.Candidate,
		U:            sol.U,
		Resid:        sol.Resid,
		Retcode:      sol.Retcode,
		ResidualNorm: sol.ResidualNorm(opt.L2Norm),
		Stats:        sol.Stats,
		Attempts:     attempts,
		Duration:     duration,
		Timestamp:    time.Now(),
	}
}

// ToInfo converts a full Report to ReportInfo (metadata only).
func (r *Report) ToInfo() ReportInfo {
	return ReportInfo{
		ID:           r.ID,
		Problem:      r.Config.Problem,
		Preset:       r.Config.Preset,
		Path:         r.Config.Path,
		Method:       r.Method,
		Retcode:      r.Retcode,
		ResidualNorm: r.ResidualNorm,
		Timestamp:    r.Timestamp,
	}
}

// Validate checks if the report has valid data.
func (r *Report) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Config.Problem == "" {
		return &ValidationError{Field: "Config.Problem", Reason: "cannot be empty"}
	}
	if len(r.U) == 0 {
		return &ValidationError{Field: "U", Reason: "cannot be empty"}
	}
	if len(r.Resid) != len(r.U) {
		return &ValidationError{Field: "Resid", Reason: "length must match U"}
	}
	// JSON cannot encode NaN or Inf
	if !allFinite(r.U) {
		return &ValidationError{Field: "U", Reason: "must be finite"}
	}
	if !allFinite(r.Resid) {
		return &ValidationError{Field: "Resid", Reason: "must be finite"}
	}
	if r.ResidualNorm < 0 || !allFinite([]float64{r.ResidualNorm}) {
		return &ValidationError{Field: "ResidualNorm", Reason: "must be finite and non-negative"}
	}
	for _, a := range r.Attempts {
		if !allFinite([]float64{a.ResidualNorm}) {
			return &ValidationError{Field: "Attempts", Reason: fmt.Sprintf("candidate %d has a non-finite residual norm", a.Index)}
		}
	}
	if r.Candidate < -1 {
		return &ValidationError{Field: "Candidate", Reason: "must be >= -1"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// ValidationError represents a report validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
