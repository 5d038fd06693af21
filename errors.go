package fsx600

import (
	"errors"
	"syscall"
)

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrInvalidImage is returned when the superblock magic does not match Magic
	ErrInvalidImage = errors.New("invalid image, fsx600 magic not found")

	// ErrNotFound is returned when a path component or directory entry does not exist
	ErrNotFound = errors.New("no such file or directory")

	// ErrNotDirectory is returned when attempting to perform directory operations on a non-directory
	ErrNotDirectory = errors.New("not a directory")

	// ErrIsDirectory is returned when a file operation (unlink, link) targets a directory
	ErrIsDirectory = errors.New("is a directory")

	// ErrExist is returned when creating an entry whose name is already taken
	ErrExist = errors.New("file exists")

	// ErrNotEmpty is returned when removing a directory that still has entries
	ErrNotEmpty = errors.New("directory not empty")

	// ErrNoSpace is returned when the inode or block bitmap has no free bit left,
	// or a directory block has no free entry slot
	ErrNoSpace = errors.New("no space left on device")

	// ErrInvalid is returned for unsupported arguments: truncate to a non-zero
	// length, a write starting past EOF, or a cross-directory rename
	ErrInvalid = errors.New("invalid argument")

	// ErrIO is returned when the block device fails a read or write
	ErrIO = errors.New("i/o error")

	// ErrAccess is returned for a link destination with an empty leaf name
	ErrAccess = errors.New("permission denied")

	// ErrBadAddr is returned by block devices for out of range block numbers
	ErrBadAddr = errors.New("bad block address")

	// ErrBadSize is returned by block devices when a buffer is shorter than
	// the number of blocks requested
	ErrBadSize = errors.New("bad block buffer size")
)

// Errno converts an error returned by this package into the negative POSIX
// error number the host expects. nil maps to 0, unknown errors to -EIO.
func Errno(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return -int(syscall.ENOENT)
	case errors.Is(err, ErrNotDirectory):
		return -int(syscall.ENOTDIR)
	case errors.Is(err, ErrIsDirectory):
		return -int(syscall.EISDIR)
	case errors.Is(err, ErrExist):
		return -int(syscall.EEXIST)
	case errors.Is(err, ErrNotEmpty):
		return -int(syscall.ENOTEMPTY)
	case errors.Is(err, ErrNoSpace):
		return -int(syscall.ENOSPC)
	case errors.Is(err, ErrInvalid):
		return -int(syscall.EINVAL)
	case errors.Is(err, ErrAccess):
		return -int(syscall.EACCES)
	default:
		return -int(syscall.EIO)
	}
}
