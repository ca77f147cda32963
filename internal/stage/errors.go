package stage

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrStageViolation is matched by every *Error.
	ErrStageViolation = errors.New("stage: stage violation")

	// ErrInvalidStage indicates a stage value outside Topology..Report.
	ErrInvalidStage = errors.New("stage: invalid stage")
)

// Error reports an operation attempted while the ladder was below the stage
// it needs.
type Error struct {
	Op   string
	Have Stage
	Need Stage
}

func (e *Error) Error() string {
	return fmt.Sprintf("stage: %s requires stage %s but state is at %s", e.Op, e.Need, e.Have)
}

func (e *Error) Is(target error) bool { return target == ErrStageViolation }
