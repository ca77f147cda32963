package matter

import "github.com/pkg/errors"

var (
	ErrWrongTopology = errors.New("matter: state belongs to a different topology")
	ErrBadBody       = errors.New("matter: body index out of range")
	ErrBadLength     = errors.New("matter: slice has the wrong length")
	ErrBadWeight     = errors.New("matter: weights must be positive and finite")
)
