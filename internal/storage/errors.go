package storage

import "errors"

var (
	ErrPresentationNotFound = errors.New("presentation not found")
	ErrPresentationExists   = errors.New("presentation already exists")
	ErrInvalidData          = errors.New("invalid data")
	ErrStorageInit          = errors.New("storage initialization failed")
	ErrFileOperation        = errors.New("file operation failed")
	ErrClosed               = errors.New("storage closed")
)
