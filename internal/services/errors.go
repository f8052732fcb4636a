package services

import "errors"

var (
	ErrInvalidName       = errors.New("invalid project name")
	ErrProjectExists     = errors.New("project already exists")
	ErrProjectNotFound   = errors.New("project not found")
	ErrReferenceNotFound = errors.New("reference not found")
	ErrDuplicateKey      = errors.New("citation key already exists in project")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrNoInput           = errors.New("no bibtex input")
	ErrStorageDisabled   = errors.New("file storage is not configured")
)
