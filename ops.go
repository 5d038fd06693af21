package fsx600

import (
	"context"
	"os"
	"strings"
)

// Creds carries the effective uid/gid of the caller of a creating operation.
type Creds struct {
	Uid uint32
	Gid uint32
}

type credsKey struct{}

// WithCreds attaches caller credentials to ctx. Hosts that know the
// requesting user set this on every creating upcall.
func WithCreds(ctx context.Context, c Creds) context.Context {
	return context.WithValue(ctx, credsKey{}, c)
}

// credsFrom returns the credentials attached to ctx, falling back to the
// process ids when the host did not provide any.
func credsFrom(ctx context.Context) Creds {
	if c, ok := ctx.Value(credsKey{}).(Creds); ok {
		return c
	}
	return Creds{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
}

// The operation layer: path-based upcalls as the host dispatches them. Each
// operation resolves its path, checks types and delegates to the directory,
// block-map and file primitives. Errors come back as this package's
// sentinels; hosts speaking numeric errnos convert with Errno().

// Getattr returns the attributes of the file or directory at path.
func (v *Volume) Getattr(path string) (Stat, error) {
	inum, err := v.InodeOfPath(path)
	if err != nil {
		return Stat{}, err
	}
	return v.StatInode(inum), nil
}

// Readdir lists the directory at path in slot order. `.` and `..` are
// included unless skipDots is set.
func (v *Volume) Readdir(path string, skipDots bool) ([]Dirent, error) {
	inum, err := v.InodeOfPath(path)
	if err != nil {
		return nil, err
	}
	return v.ReadDirInode(inum, skipDots)
}

// Mknod creates a regular file at path with the given permission bits.
func (v *Volume) Mknod(ctx context.Context, path string, mode uint32) error {
	dir, leaf, err := v.InodeOfPathDir(path)
	if err != nil {
		return err
	}
	_, err = v.mkentry(dir, leaf, mode, S_IFREG, credsFrom(ctx))
	return err
}

// Mkdir creates a directory at path, complete with its `.` and `..`
// entries.
func (v *Volume) Mkdir(ctx context.Context, path string, mode uint32) error {
	dir, leaf, err := v.InodeOfPathDir(path)
	if err != nil {
		return err
	}
	_, err = v.mkentry(dir, leaf, mode, S_IFDIR, credsFrom(ctx))
	return err
}

// Unlink deletes the file at path, releasing its inode and blocks once the
// last link is gone.
func (v *Volume) Unlink(path string) error {
	dir, leaf, err := v.InodeOfPathDir(path)
	if err != nil {
		return err
	}
	return v.unlinkEntry(dir, leaf)
}

// Rmdir removes the empty directory at path.
func (v *Volume) Rmdir(path string) error {
	dir, leaf, err := v.InodeOfPathDir(path)
	if err != nil {
		return err
	}
	return v.rmdirEntry(dir, leaf)
}

// Rename renames src to dst within a single directory. Moves across
// directories are unsupported.
func (v *Volume) Rename(src, dst string) error {
	srcDir, srcLeaf, err := v.InodeOfPathDir(src)
	if err != nil {
		return err
	}
	dstDir, dstLeaf, err := v.InodeOfPathDir(dst)
	if err != nil {
		return err
	}
	return v.renameEntry(srcDir, srcLeaf, dstDir, dstLeaf)
}

// Link creates a hard link at dst to the existing file at src. Directories
// cannot be linked.
func (v *Volume) Link(src, dst string) error {
	srcInum, err := v.InodeOfPath(src)
	if err != nil {
		return err
	}
	dir, leaf, err := v.InodeOfPathDir(dst)
	if err != nil {
		return err
	}
	if leaf == "" || strings.HasSuffix(dst, "/") {
		return ErrAccess
	}
	return v.linkEntry(srcInum, dir, leaf)
}

// Truncate discards the content of the file at path. Only length 0 is
// supported.
func (v *Volume) Truncate(path string, length int64) error {
	inum, err := v.InodeOfPath(path)
	if err != nil {
		return err
	}
	if err := v.truncateInode(inum, length); err != nil {
		return err
	}
	return v.FlushMetadata()
}

// Read copies up to len(buf) bytes from the file at path starting at off and
// returns the number of bytes read. Reads past EOF return 0.
func (v *Volume) Read(path string, buf []byte, off int64) (int, error) {
	inum, err := v.InodeOfPath(path)
	if err != nil {
		return 0, err
	}
	if v.inode(inum).IsDir() {
		return 0, ErrIsDirectory
	}
	return v.readInode(inum, buf, off)
}

// Write stores len(buf) bytes into the file at path starting at off and
// returns the number of bytes written.
func (v *Volume) Write(path string, buf []byte, off int64) (int, error) {
	inum, err := v.InodeOfPath(path)
	if err != nil {
		return 0, err
	}
	if v.inode(inum).IsDir() {
		return 0, ErrIsDirectory
	}
	return v.writeInode(inum, buf, off)
}

// StatFS holds the totals statfs reports: superblock-derived capacities plus
// free counts obtained by popcount over the bitmaps.
type StatFS struct {
	BlockSize  uint32
	Blocks     uint32
	BlocksFree uint32
	Inodes     uint32
	InodesFree uint32
	NameMax    uint32
}

// Statfs returns the volume totals.
func (v *Volume) Statfs() StatFS {
	return StatFS{
		BlockSize:  BlockSize,
		Blocks:     v.Super.NumBlocks,
		BlocksFree: uint32(v.FreeBlockCount()),
		Inodes:     uint32(v.NumInodes()),
		InodesFree: uint32(v.FreeInodeCount()),
		NameMax:    MaxName,
	}
}

// Readlink returns the target of the symbolic link at path. Link inodes can
// only come from images written off-line; they are reported, never
// followed.
func (v *Volume) Readlink(path string) (string, error) {
	inum, err := v.InodeOfPath(path)
	if err != nil {
		return "", err
	}
	in := v.inode(inum)
	if !in.IsSymlink() {
		return "", ErrInvalid
	}
	buf := make([]byte, in.Size)
	if _, err := v.readInode(inum, buf, 0); err != nil {
		return "", err
	}
	return string(buf), nil
}
