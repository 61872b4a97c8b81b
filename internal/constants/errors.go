package constants

import "errors"

// Profile and configuration errors.
var (
	ErrNoProfilesConfigured = errors.New("no profiles configured, run 'gia configure' first")
	ErrProfileNotFound      = errors.New("profile not found, run 'gia configure' first")
	ErrProfileIncomplete    = errors.New("profile is missing required fields")
	ErrBaseURLRequired      = errors.New("base URL is required")
	ErrTokenURLRequired     = errors.New("token endpoint is required")
	ErrClientIDRequired     = errors.New("client ID is required")
	ErrClientSecretRequired = errors.New("client secret is required")
)

// Command argument errors.
var (
	ErrFileRequired          = errors.New("--file flag is required")
	ErrObjectTypeRequired    = errors.New("--object-type flag is required")
	ErrInvalidLoadSpec       = errors.New("--load expects OBJECT_TYPE=FILE")
	ErrDeletionNotConfirmed  = errors.New("deletion not confirmed, pass --yes to proceed")
	ErrUnsupportedFileFormat = errors.New("unsupported descriptor file format")
	ErrUnsupportedOutput     = errors.New("unsupported output format")
)

// Upload job errors.
var (
	ErrUploadFailed      = errors.New("upload job failed")
	ErrUploadHasFailures = errors.New("upload job completed with row failures")
	ErrUploadNotTerminal = errors.New("upload job has not finished yet")
)

// File system errors.
var (
	ErrNotRegularFile             = errors.New("path is not a regular file")
	ErrDirectoryTraversalDetected = errors.New("directory traversal detected in file path")
)
