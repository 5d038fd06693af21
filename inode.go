package fsx600

import (
	"bytes"
	"encoding/binary"
	"io/fs"
)

const (
	// Magic is the superblock magic number
	Magic = 0x37363030

	// MaxName is the maximum file name length; on disk a name occupies
	// MaxName+1 bytes including the trailing NUL
	MaxName = 27

	// NDirect is the number of direct block pointers in an inode
	NDirect = 6

	// InodeSize is the on-disk size of one inode
	InodeSize = 64

	// InodesPerBlock is how many inodes fit in one block
	InodesPerBlock = BlockSize / InodeSize

	// PtrsPerBlock is how many 32-bit block pointers fit in one block
	PtrsPerBlock = BlockSize / 4

	// DirentsPerBlock is how many directory entries fit in one block
	DirentsPerBlock = BlockSize / DirentSize
)

// Unix file type bits as stored in Inode.Mode.
const (
	S_IFMT  = 0170000
	S_IFREG = 0100000
	S_IFDIR = 0040000
	S_IFLNK = 0120000
)

// Inode is the fixed 64-byte on-disk record describing one file or
// directory. Block pointer value 0 means "no block" (block 0 is the
// superblock and never holds data).
type Inode struct {
	Uid    uint16
	Gid    uint16
	Mode   uint32 // permission bits | S_IFREG / S_IFDIR / S_IFLNK
	Ctime  uint32
	Mtime  uint32
	Size   uint32 // bytes
	Nlink  uint32
	Direct [NDirect]uint32
	Indir1 uint32
	Indir2 uint32
	Pad    [2]uint32
}

// IsDir reports whether the inode describes a directory.
func (in *Inode) IsDir() bool {
	return in.Mode&S_IFMT == S_IFDIR
}

// IsSymlink reports whether the inode describes a symbolic link. Links can
// appear in images written off-line; this package never dereferences them.
func (in *Inode) IsSymlink() bool {
	return in.Mode&S_IFMT == S_IFLNK
}

func decodeInodes(buf []byte, out []Inode) error {
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, out)
}

func encodeInodes(in []Inode, buf []byte) {
	var w bytes.Buffer
	binary.Write(&w, binary.LittleEndian, in)
	copy(buf, w.Bytes())
}

// inode modes are plain unix bits, so conversion to io/fs follows
// the usual mapping: https://golang.org/src/os/stat_linux.go

// UnixToMode converts on-disk unix mode bits to a fs.FileMode.
func UnixToMode(mode uint32) fs.FileMode {
	res := fs.FileMode(mode & 0777)

	switch mode & S_IFMT {
	case S_IFDIR:
		res |= fs.ModeDir
	case S_IFLNK:
		res |= fs.ModeSymlink
	}

	return res
}

// ModeToUnix converts a fs.FileMode to on-disk unix mode bits.
func ModeToUnix(mode fs.FileMode) uint32 {
	res := uint32(mode.Perm())

	switch {
	case mode&fs.ModeDir == fs.ModeDir:
		res |= S_IFDIR
	case mode&fs.ModeSymlink == fs.ModeSymlink:
		res |= S_IFLNK
	default:
		res |= S_IFREG
	}

	return res
}
