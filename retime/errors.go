package retime

import (
	"fmt"

	"github.com/google/uuid"
)

// Stage names one step of the alignment engine
type Stage string

const (
	StageExtractOriginal    Stage = "extract_original"
	StageExtractReplacement Stage = "extract_replacement"
	StageAlign              Stage = "align"
	StageInterpret          Stage = "interpret"
	StageResample           Stage = "resample"
)

// StageError identifies the stage and run a failure came from. The
// underlying sentinel stays reachable through errors.Is.
type StageError struct {
	Stage Stage
	RunID uuid.UUID
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("retime %s (run %s): %v", e.Stage, e.RunID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
