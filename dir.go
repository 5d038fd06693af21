package fsx600

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// DirentSize is the on-disk size of one directory entry
const DirentSize = 32

// Dirent is a decoded directory entry: a 32-byte record binding a name of up
// to MaxName bytes to a 30-bit inumber. The low two bits of the first word
// carry the valid and isDir flags.
type Dirent struct {
	Valid bool
	IsDir bool
	Inode uint32
	Name  string
}

func decodeDirents(buf []byte) []Dirent {
	ents := make([]Dirent, DirentsPerBlock)
	for i := range ents {
		rec := buf[i*DirentSize:]
		w := binary.LittleEndian.Uint32(rec)
		name := rec[4:DirentSize]
		if j := bytes.IndexByte(name, 0); j >= 0 {
			name = name[:j]
		}
		ents[i] = Dirent{
			Valid: w&1 != 0,
			IsDir: w&2 != 0,
			Inode: w >> 2,
			Name:  string(name),
		}
	}
	return ents
}

func encodeDirents(ents []Dirent, buf []byte) {
	for i, e := range ents {
		rec := buf[i*DirentSize : (i+1)*DirentSize]
		w := e.Inode << 2
		if e.Valid {
			w |= 1
		}
		if e.IsDir {
			w |= 2
		}
		binary.LittleEndian.PutUint32(rec, w)
		name := e.Name
		if len(name) > MaxName {
			name = name[:MaxName]
		}
		n := copy(rec[4:], name)
		for j := 4 + n; j < DirentSize; j++ {
			rec[j] = 0
		}
	}
}

// readDirBlock reads the idx-th entry block of directory inum. A zero block
// number is returned when the directory has no such block.
func (v *Volume) readDirBlock(inum, idx int, alloc bool) (int, []Dirent, error) {
	buf := make([]byte, BlockSize)
	blkno, err := v.getFileBlk(inum, idx, buf, alloc)
	if err != nil {
		return 0, nil, err
	}
	if blkno == 0 {
		return 0, nil, nil
	}
	return blkno, decodeDirents(buf), nil
}

func (v *Volume) writeDirBlock(blkno int, ents []Dirent) error {
	buf := make([]byte, BlockSize)
	encodeDirents(ents, buf)
	return v.dev.WriteBlocks(blkno, 1, buf)
}

// dirLookup finds name in the directory at inum. Entries are compared as
// NUL-terminated byte strings. Every allocated entry block is searched, so
// directories grown beyond one block off-line still resolve; mutations only
// ever use the first block.
func (v *Volume) dirLookup(inum int, name string) (blkno, entno int, ents []Dirent, err error) {
	if !v.inode(inum).IsDir() {
		return 0, 0, nil, ErrNotDirectory
	}
	for idx := 0; ; idx++ {
		blkno, ents, err = v.readDirBlock(inum, idx, false)
		if err != nil {
			return 0, 0, nil, err
		}
		if blkno == 0 {
			return 0, 0, nil, ErrNotFound
		}
		for i, e := range ents {
			if e.Valid && e.Name == name {
				return blkno, i, ents, nil
			}
		}
	}
}

// dirFreeSlot returns the first invalid slot of the directory's first entry
// block, allocating the block when the directory has none yet.
func (v *Volume) dirFreeSlot(inum int) (blkno, entno int, ents []Dirent, err error) {
	blkno, ents, err = v.readDirBlock(inum, 0, true)
	if err != nil {
		return 0, 0, nil, err
	}
	if blkno == 0 {
		return 0, 0, nil, ErrNoSpace
	}
	for i, e := range ents {
		if !e.Valid {
			return blkno, i, ents, nil
		}
	}
	return 0, 0, nil, ErrNoSpace
}

// setEntry points slot entno at inum under the given name and increments the
// target's link count. The caller writes the containing block back.
func (v *Volume) setEntry(ents []Dirent, entno, inum int, name string) {
	if len(name) > MaxName {
		name = name[:MaxName]
	}
	ents[entno] = Dirent{
		Valid: true,
		IsDir: v.inode(inum).IsDir(),
		Inode: uint32(inum),
		Name:  name,
	}
	v.inode(inum).Nlink++
	v.markInode(inum)
}

// initNewInode allocates and initialises an inode of the given type. uid and
// gid come from the calling context.
func (v *Volume) initNewInode(mode, ftype uint32, creds Creds) (int, error) {
	inum, err := v.AllocInode()
	if err != nil {
		return 0, err
	}
	in := v.inode(inum)
	in.Mode = (mode &^ S_IFMT) | (ftype & S_IFMT)
	now := now32()
	in.Ctime = now
	in.Mtime = now
	in.Size = 0
	in.Nlink = 0
	in.Uid = uint16(creds.Uid)
	in.Gid = uint16(creds.Gid)
	v.markInode(inum)
	return inum, nil
}

// mkentry creates a file or directory named leaf inside the directory at
// dirInum. New directories receive their `.` and `..` entries immediately,
// which is where the 64-byte initial size and the extra link counts come
// from. Returns the new inumber.
func (v *Volume) mkentry(dirInum int, leaf string, mode, ftype uint32, creds Creds) (int, error) {
	din := v.inode(dirInum)
	if !din.IsDir() {
		return 0, ErrNotDirectory
	}
	if _, _, _, err := v.dirLookup(dirInum, leaf); err == nil {
		return 0, ErrExist
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	blkno, entno, ents, err := v.dirFreeSlot(dirInum)
	if err != nil {
		return 0, err
	}

	inum, err := v.initNewInode(mode, ftype, creds)
	if err != nil {
		return 0, err
	}

	if ftype&S_IFMT == S_IFDIR {
		if err := v.initDotEntries(inum, dirInum); err != nil {
			return 0, err
		}
	}

	v.setEntry(ents, entno, inum, leaf)
	if err := v.writeDirBlock(blkno, ents); err != nil {
		return 0, err
	}

	din.Size += DirentSize
	v.markInode(dirInum)

	if err := v.FlushMetadata(); err != nil {
		return 0, err
	}
	return inum, nil
}

// initDotEntries writes the `.` and `..` entries of a fresh directory and
// accounts their links: `.` references the directory itself, `..` its
// parent.
func (v *Volume) initDotEntries(inum, parent int) error {
	blkno, entno, ents, err := v.dirFreeSlot(inum)
	if err != nil {
		return err
	}
	v.setEntry(ents, entno, inum, ".")
	v.setEntry(ents, entno+1, parent, "..")
	if err := v.writeDirBlock(blkno, ents); err != nil {
		return err
	}
	v.inode(inum).Size = 2 * DirentSize
	v.markInode(inum)
	return nil
}

// unlinkEntry removes the entry leaf from the directory at dirInum and drops one
// link from the target. The inode and its blocks are only released when the
// last link goes away, so hard-linked files survive.
func (v *Volume) unlinkEntry(dirInum int, leaf string) error {
	din := v.inode(dirInum)
	if !din.IsDir() {
		return ErrNotDirectory
	}
	blkno, entno, ents, err := v.dirLookup(dirInum, leaf)
	if err != nil {
		return err
	}
	inum := int(ents[entno].Inode)
	if v.inode(inum).IsDir() {
		return ErrIsDirectory
	}

	ents[entno].Valid = false
	if err := v.writeDirBlock(blkno, ents); err != nil {
		return err
	}

	in := v.inode(inum)
	if in.Nlink > 0 {
		in.Nlink--
	}
	v.markInode(inum)
	if in.Nlink == 0 {
		if err := v.truncateBlocks(inum); err != nil {
			return err
		}
		v.FreeInode(inum)
	}

	if din.Size >= DirentSize {
		din.Size -= DirentSize
	} else {
		din.Size = 0
	}
	v.markInode(dirInum)

	return v.FlushMetadata()
}

// dirEntryCount returns the number of valid entries, not counting `.` and
// `..`, across every entry block of the directory.
func (v *Volume) dirEntryCount(inum int) (int, error) {
	if !v.inode(inum).IsDir() {
		return 0, ErrNotDirectory
	}
	count := 0
	for idx := 0; ; idx++ {
		blkno, ents, err := v.readDirBlock(inum, idx, false)
		if err != nil {
			return 0, err
		}
		if blkno == 0 {
			return count, nil
		}
		for _, e := range ents {
			if e.Valid && e.Name != "." && e.Name != ".." {
				count++
			}
		}
	}
}

// rmdirEntry removes the empty directory named leaf from the directory at
// dirInum. A directory is empty when it holds no valid entry besides `.`
// and `..`; the dot entries themselves cannot be removed.
func (v *Volume) rmdirEntry(dirInum int, leaf string) error {
	din := v.inode(dirInum)
	if !din.IsDir() {
		return ErrNotDirectory
	}
	if leaf == "." || leaf == ".." {
		return ErrNotEmpty
	}
	blkno, entno, ents, err := v.dirLookup(dirInum, leaf)
	if err != nil {
		return err
	}
	inum := int(ents[entno].Inode)
	if !v.inode(inum).IsDir() {
		return ErrNotDirectory
	}
	n, err := v.dirEntryCount(inum)
	if err != nil {
		return err
	}
	if n != 0 {
		return ErrNotEmpty
	}

	ents[entno].Valid = false
	if err := v.writeDirBlock(blkno, ents); err != nil {
		return err
	}

	if err := v.truncateBlocks(inum); err != nil {
		return err
	}
	v.markInode(inum)
	v.FreeInode(inum)

	// the removed directory's `..` no longer references the parent
	if din.Nlink > 0 {
		din.Nlink--
	}
	if din.Size >= DirentSize {
		din.Size -= DirentSize
	} else {
		din.Size = 0
	}
	v.markInode(dirInum)

	return v.FlushMetadata()
}

// renameEntry gives the entry srcLeaf of the directory at srcDir the new name
// dstLeaf, in place. Cross-directory renames are unsupported.
func (v *Volume) renameEntry(srcDir int, srcLeaf string, dstDir int, dstLeaf string) error {
	if srcDir == 0 || srcDir != dstDir {
		return ErrInvalid
	}
	blkno, entno, ents, err := v.dirLookup(srcDir, srcLeaf)
	if err != nil {
		return err
	}
	if _, _, _, err := v.dirLookup(dstDir, dstLeaf); err == nil {
		return ErrExist
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if len(dstLeaf) > MaxName {
		dstLeaf = dstLeaf[:MaxName]
	}
	ents[entno].Name = dstLeaf
	if err := v.writeDirBlock(blkno, ents); err != nil {
		return err
	}

	v.inode(srcDir).Mtime = now32()
	v.markInode(srcDir)
	return v.FlushMetadata()
}

// linkEntry adds a directory entry for the existing inode srcInum under leaf
// in the directory at dirInum. setEntry performs the single link count
// increment.
func (v *Volume) linkEntry(srcInum, dirInum int, leaf string) error {
	if v.inode(srcInum).IsDir() {
		return ErrIsDirectory
	}
	din := v.inode(dirInum)
	if !din.IsDir() {
		return ErrNotDirectory
	}
	if leaf == "" {
		return ErrAccess
	}
	if _, _, _, err := v.dirLookup(dirInum, leaf); err == nil {
		return ErrExist
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	blkno, entno, ents, err := v.dirFreeSlot(dirInum)
	if err != nil {
		return err
	}
	v.setEntry(ents, entno, srcInum, leaf)
	if err := v.writeDirBlock(blkno, ents); err != nil {
		return err
	}

	din.Size += DirentSize
	v.markInode(dirInum)
	return v.FlushMetadata()
}

// ReadDirInode returns the valid entries of the directory at inum, in slot
// order, across every allocated entry block. With skipDots the `.` and `..`
// entries are left out.
func (v *Volume) ReadDirInode(inum int, skipDots bool) ([]Dirent, error) {
	if !v.inode(inum).IsDir() {
		return nil, ErrNotDirectory
	}
	var res []Dirent
	for idx := 0; ; idx++ {
		blkno, ents, err := v.readDirBlock(inum, idx, false)
		if err != nil {
			return nil, err
		}
		if blkno == 0 {
			return res, nil
		}
		for _, e := range ents {
			if !e.Valid {
				continue
			}
			if skipDots && (e.Name == "." || e.Name == "..") {
				continue
			}
			res = append(res, e)
		}
	}
}
