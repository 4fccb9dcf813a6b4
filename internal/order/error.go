package order

import (
	"fmt"

	"monarchmail-be/internal/apperr"
)

var ErrDraftNotFound = fmt.Errorf("order draft %w", apperr.ErrNotFound)
