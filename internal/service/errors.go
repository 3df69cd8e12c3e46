package service

import (
	"errors"
	"fmt"
)

// Error taxonomy. Workflows wrap these sentinels so the HTTP layer can map
// them to status codes with errors.Is without inspecting message text.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("conflict")
)

var (
	ErrProductMissing    = fmt.Errorf("%w: product not found", ErrBadRequest)
	ErrPriceMismatch     = fmt.Errorf("%w: unit price does not match catalog", ErrBadRequest)
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrConflict)
	ErrPaymentProcessed  = fmt.Errorf("%w: payment already processed", ErrConflict)
	ErrAlreadyRefunded   = fmt.Errorf("%w: transaction already refunded", ErrConflict)
	ErrIllegalTransition = fmt.Errorf("%w: illegal status transition", ErrConflict)
	ErrDuplicateRequest  = fmt.Errorf("%w: duplicate checkout request", ErrConflict)
)
