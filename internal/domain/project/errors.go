package project

import "errors"

var (
	// ErrProjectNotFound indicates the project doesn't exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrMembershipNotFound indicates the project membership doesn't exist.
	ErrMembershipNotFound = errors.New("project membership not found")
	// ErrInvalidInput indicates invalid project input.
	ErrInvalidInput = errors.New("invalid project input")
	// ErrDuplicateName indicates another project already uses the name.
	ErrDuplicateName = errors.New("project name already exists")
	// ErrForbidden indicates the user may not act on the project.
	ErrForbidden = errors.New("forbidden")
)
