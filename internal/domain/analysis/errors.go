package analysis

import "errors"

var (
	ErrWrongAnalysis       = errors.New("analysis variant does not match analyzer")
	ErrAnalyzerUnavailable = errors.New("no analyzer configured")
)
