package vectorindex

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("vectorindex: invalid config")

// ErrNotFound is returned by Delete for an id that isn't in the index.
var ErrNotFound = errors.New("vectorindex: id not found")

// DimensionMismatchError is spec.md §7's DIMENSION_MISMATCH: an embedding
// was given with the wrong length for this index.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("vectorindex: dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
