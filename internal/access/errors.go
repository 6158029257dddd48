package access

import "errors"

var (
	ErrInvalidInput     = errors.New("access: invalid input")
	ErrNotFound         = errors.New("access: not found")
	ErrConflict         = errors.New("access: resource conflict")
	ErrPermissionDenied = errors.New("access: insufficient permissions")
	ErrAlreadyProcessed = errors.New("access: request already processed")
	ErrNoneAssigned     = errors.New("access: no users could be assigned")
)
