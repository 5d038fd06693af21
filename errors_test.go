package fsx600_test

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/KarpelesLab/fsx600"
)

func TestErrno(t *testing.T) {
	cases := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{fsx600.ErrNotFound, syscall.ENOENT},
		{fsx600.ErrNotDirectory, syscall.ENOTDIR},
		{fsx600.ErrIsDirectory, syscall.EISDIR},
		{fsx600.ErrExist, syscall.EEXIST},
		{fsx600.ErrNotEmpty, syscall.ENOTEMPTY},
		{fsx600.ErrNoSpace, syscall.ENOSPC},
		{fsx600.ErrInvalid, syscall.EINVAL},
		{fsx600.ErrAccess, syscall.EACCES},
		{fsx600.ErrIO, syscall.EIO},
		// wrapped errors still map through errors.Is
		{fmt.Errorf("lookup: %w", fsx600.ErrNotFound), syscall.ENOENT},
		// anything unrecognised surfaces as an I/O error
		{fmt.Errorf("device exploded"), syscall.EIO},
	}
	for _, c := range cases {
		if got := fsx600.Errno(c.err); got != -int(c.want) {
			t.Errorf("Errno(%v) = %d, expected %d", c.err, got, -int(c.want))
		}
	}
}
