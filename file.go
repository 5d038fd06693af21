package fsx600

import (
	"io"
	"io/fs"
	"path"
	"time"
)

func now32() uint32 {
	return uint32(time.Now().Unix())
}

// Stat mirrors the fields of a host stat structure for one inode.
type Stat struct {
	Ino    uint32
	Mode   uint32
	Nlink  uint32
	Uid    uint32
	Gid    uint32
	Size   int64
	Blocks int64 // 512-byte units, rounded up
	Atime  uint32
	Mtime  uint32
	Ctime  uint32
}

// StatInode fills a Stat for inum. atime is reported as mtime, the format
// does not store it.
func (v *Volume) StatInode(inum int) Stat {
	in := v.inode(inum)
	return Stat{
		Ino:    uint32(inum),
		Mode:   in.Mode,
		Nlink:  in.Nlink,
		Uid:    uint32(in.Uid),
		Gid:    uint32(in.Gid),
		Size:   int64(in.Size),
		Blocks: (int64(in.Size) + 511) / 512,
		Atime:  in.Mtime,
		Mtime:  in.Mtime,
		Ctime:  in.Ctime,
	}
}

// readInode copies up to len(buf) bytes of the file at inum starting at off.
// Reads past EOF return 0; reads crossing EOF are clamped. The format has
// no holes, so a missing block inside the file is an I/O error.
func (v *Volume) readInode(inum int, buf []byte, off int64) (int, error) {
	in := v.inode(inum)
	if off >= int64(in.Size) {
		return 0, nil
	}
	if rest := int64(in.Size) - off; int64(len(buf)) > rest {
		buf = buf[:rest]
	}

	read := 0
	blk := make([]byte, BlockSize)
	for len(buf) > 0 {
		pos := int(off % BlockSize)
		blkno, err := v.getFileBlk(inum, int(off/BlockSize), blk, false)
		if err != nil {
			return read, err
		}
		if blkno == 0 {
			return read, ErrIO
		}
		l := BlockSize - pos
		if l > len(buf) {
			l = len(buf)
		}
		copy(buf, blk[pos:pos+l])
		buf = buf[l:]
		off += int64(l)
		read += l
	}
	return read, nil
}

// writeInode stores len(buf) bytes at off, allocating blocks on demand. Writes
// starting past EOF are rejected (no holes). When the first or last block is
// only partially covered it is read first so the untouched bytes survive.
// On allocator exhaustion mid-range the bytes already written stay durable,
// the size reflects them, and ErrNoSpace is returned.
func (v *Volume) writeInode(inum int, buf []byte, off int64) (int, error) {
	in := v.inode(inum)
	if off > int64(in.Size) {
		return 0, ErrInvalid
	}

	written := 0
	blk := make([]byte, BlockSize)
	for len(buf) > 0 {
		pos := int(off % BlockSize)
		l := BlockSize - pos
		if l > len(buf) {
			l = len(buf)
		}

		var blkno int
		var err error
		if pos == 0 && l == BlockSize {
			blkno, err = v.blockOf(inum, int(off/BlockSize), true)
		} else {
			blkno, err = v.getFileBlk(inum, int(off/BlockSize), blk, true)
		}
		if err == nil && blkno == 0 {
			err = ErrNoSpace
		}
		if err == nil {
			copy(blk[pos:pos+l], buf[:l])
			err = v.dev.WriteBlocks(blkno, 1, blk)
		}
		if err != nil {
			in.Mtime = now32()
			v.markInode(inum)
			v.FlushMetadata()
			return written, err
		}

		buf = buf[l:]
		off += int64(l)
		written += l
		if off > int64(in.Size) {
			in.Size = uint32(off)
		}
	}

	in.Mtime = now32()
	v.markInode(inum)
	return written, v.FlushMetadata()
}

// truncateInode discards the file content of inum. Only length 0 is supported;
// the inode itself stays allocated.
func (v *Volume) truncateInode(inum int, length int64) error {
	if length != 0 {
		return ErrInvalid
	}
	if err := v.truncateBlocks(inum); err != nil {
		return err
	}
	in := v.inode(inum)
	in.Size = 0
	in.Mtime = now32()
	v.markInode(inum)
	return nil
}

// io/fs adapter, read side only: a mounted Volume can be walked with
// fs.WalkDir, fs.Glob, fs.ReadFile and friends.

// File is a convenience object exposing a regular file inode as a fs.File
type File struct {
	*io.SectionReader
	v    *Volume
	inum int
	name string
}

// FileDir is a convenience object exposing a directory inode as a fs.ReadDirFile
type FileDir struct {
	v       *Volume
	inum    int
	name    string
	entries []fs.DirEntry
	pos     int
}

type fileinfo struct {
	name string
	st   Stat
}

type direntry struct {
	name string
	v    *Volume
	inum int
}

// Ensure File respects fs.File & others
var _ fs.FS = (*Volume)(nil)
var _ fs.File = (*File)(nil)
var _ io.ReaderAt = (*File)(nil)

var _ fs.ReadDirFile = (*FileDir)(nil)

var _ fs.FileInfo = (*fileinfo)(nil)

// inodeReader adapts readInode to io.ReaderAt for SectionReader.
type inodeReader struct {
	v    *Volume
	inum int
}

func (r inodeReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.v.readInode(r.inum, p, off)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Open implements fs.FS. Directories come back as fs.ReadDirFile, regular
// files additionally implement io.Seeker and io.ReaderAt.
func (v *Volume) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	inum, err := v.inodeOfPath("/" + name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return v.openInode(inum, name), nil
}

func (v *Volume) openInode(inum int, name string) fs.File {
	if v.inode(inum).IsDir() {
		return &FileDir{v: v, inum: inum, name: name}
	}
	sec := io.NewSectionReader(inodeReader{v, inum}, 0, int64(v.inode(inum).Size))
	return &File{SectionReader: sec, v: v, inum: inum, name: name}
}

// (File)

// Stat returns the details of the open file
func (f *File) Stat() (fs.FileInfo, error) {
	return &fileinfo{name: path.Base(f.name), st: f.v.StatInode(f.inum)}, nil
}

// Close actually does nothing and exists to comply with fs.File
func (f *File) Close() error {
	return nil
}

// (FileDir)

// Read on a directory is invalid and will always fail
func (d *FileDir) Read(p []byte) (int, error) {
	return 0, fs.ErrInvalid
}

// Stat returns details on the directory
func (d *FileDir) Stat() (fs.FileInfo, error) {
	return &fileinfo{name: path.Base(d.name), st: d.v.StatInode(d.inum)}, nil
}

// Close resets the directory position
func (d *FileDir) Close() error {
	d.entries = nil
	d.pos = 0
	return nil
}

// ReadDir lists the directory. `.` and `..` entries are skipped as io/fs
// requires.
func (d *FileDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.entries == nil {
		ents, err := d.v.ReadDirInode(d.inum, true)
		if err != nil {
			return nil, err
		}
		d.entries = make([]fs.DirEntry, 0, len(ents))
		for _, e := range ents {
			d.entries = append(d.entries, &direntry{name: e.Name, v: d.v, inum: int(e.Inode)})
		}
		d.pos = 0
	}

	if n <= 0 {
		res := d.entries[d.pos:]
		d.pos = len(d.entries)
		return res, nil
	}
	if d.pos >= len(d.entries) {
		return nil, io.EOF
	}
	if d.pos+n > len(d.entries) {
		n = len(d.entries) - d.pos
	}
	res := d.entries[d.pos : d.pos+n]
	d.pos += n
	return res, nil
}

// (direntry)

func (de *direntry) Name() string {
	return de.name
}

func (de *direntry) IsDir() bool {
	return de.v.inode(de.inum).IsDir()
}

func (de *direntry) Type() fs.FileMode {
	return UnixToMode(de.v.inode(de.inum).Mode).Type()
}

func (de *direntry) Info() (fs.FileInfo, error) {
	return &fileinfo{name: de.name, st: de.v.StatInode(de.inum)}, nil
}

// (fileinfo)

// Name returns the file's base name
func (fi *fileinfo) Name() string {
	return fi.name
}

// Size returns the file's size
func (fi *fileinfo) Size() int64 {
	return fi.st.Size
}

// Mode returns the file's mode
func (fi *fileinfo) Mode() fs.FileMode {
	return UnixToMode(fi.st.Mode)
}

// ModTime returns the file's latest modified time. The format stores it as
// an unsigned 32-bit count of seconds.
func (fi *fileinfo) ModTime() time.Time {
	return time.Unix(int64(fi.st.Mtime), 0)
}

// IsDir returns true if this is a directory
func (fi *fileinfo) IsDir() bool {
	return fi.st.Mode&S_IFMT == S_IFDIR
}

// Sys returns the Stat for this file
func (fi *fileinfo) Sys() any {
	return fi.st
}
