package vectorindex

import (
	"fmt"

	"docqa/internal/domain"
)

var (
	errMissingID         = fmt.Errorf("%w: index entry without id", domain.ErrInvalidInput)
	errEmptyVector       = fmt.Errorf("%w: index entry without vector", domain.ErrInvalidInput)
	errDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", domain.ErrInvalidInput)
)

// DimensionError reports a vector whose dimension differs from the index's.
func DimensionError(got, want int) error {
	return fmt.Errorf("%w: vector dimension %d, index holds %d", domain.ErrInvalidInput, got, want)
}
