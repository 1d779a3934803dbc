package opt

import "fmt"

// ReturnCode classifies how a candidate solver stopped.
// The zero value means the solver has not terminated yet.
type ReturnCode int

const (
	Default ReturnCode = iota
	Success
	MaxIters
	Stalled
	ConvergenceFailure
	InternalLinearSolveFailure
	Unstable
	ShrinkThresholdExceeded
)

var retcodeStrings = map[ReturnCode]string{
	Default:                    "Default",
	Success:                    "Success",
	MaxIters:                   "MaxIters",
	Stalled:                    "Stalled",
	ConvergenceFailure:         "ConvergenceFailure",
	InternalLinearSolveFailure: "InternalLinearSolveFailure",
	Unstable:                   "Unstable",
	ShrinkThresholdExceeded:    "ShrinkThresholdExceeded",
}

func (r ReturnCode) String() string {
	s, ok := retcodeStrings[r]
	if !ok {
		return fmt.Sprintf("ReturnCode(%d)", int(r))
	}
	return s
}

// Successful reports whether r counts as a converged outcome.
func (r ReturnCode) Successful() bool {
	return r == Success
}

// MarshalText encodes the return code by name so reports stay readable.
func (r ReturnCode) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a return code written by MarshalText.
func (r *ReturnCode) UnmarshalText(text []byte) error {
	for code, name := range retcodeStrings {
		if name == string(text) {
			*r = code
			return nil
		}
	}
	return fmt.Errorf("unknown return code: %q", text)
}
