package domain

import "errors"

var (
	ErrNotFound        = errors.New("project not found")
	ErrForbidden       = errors.New("caller is not allowed to perform this operation")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAnnexLimit      = errors.New("annex limit exceeded")
	ErrDuplicateClaim  = errors.New("project already claimed by this provider")
	ErrOutOfRange      = errors.New("provider is outside the allowed distance")
	ErrStorage         = errors.New("storage failure")
	ErrUnauthorized    = errors.New("caller identity unknown")
)
