package fsx600

import "fmt"

// image is a scratch view over a full image being built in memory.
type image struct {
	data    []byte
	inodes  []Inode
	imap    bitmap
	bmap    bitmap
	itab    int // first inode table block
	nextBlk int // next unused data block
}

func newImage(numBlocks, numInodes int) *image {
	inodeBlks := (numInodes + InodesPerBlock - 1) / InodesPerBlock
	img := &image{
		data:    make([]byte, numBlocks*BlockSize),
		inodes:  make([]Inode, inodeBlks*InodesPerBlock),
		imap:    newBitmap(1),
		bmap:    newBitmap(1),
		itab:    3,
		nextBlk: 3 + inodeBlks,
	}
	sb := Superblock{
		Magic:         Magic,
		InodeMapSz:    1,
		InodeRegionSz: uint32(inodeBlks),
		BlockMapSz:    1,
		NumBlocks:     uint32(numBlocks),
		RootInode:     1,
	}
	buf, _ := sb.MarshalBinary()
	copy(img.data, buf)
	img.imap.set(0) // inode 0 is the reserved sentinel
	return img
}

// takeBlk hands out the next unused data block.
func (img *image) takeBlk() int {
	b := img.nextBlk
	img.nextBlk++
	return b
}

func (img *image) blk(b int) []byte {
	return img.data[b*BlockSize : (b+1)*BlockSize]
}

// finish writes the bitmaps and inode table into the image and returns the
// raw bytes. Every block up to the build cursor is marked allocated.
func (img *image) finish() []byte {
	for i := range img.inodes {
		if img.inodes[i] != (Inode{}) {
			img.imap.set(i)
		}
	}
	img.imap.set(0)
	for b := 0; b < img.nextBlk; b++ {
		img.bmap.set(b)
	}
	copy(img.data[1*BlockSize:], img.imap[:BlockSize])
	copy(img.data[2*BlockSize:], img.bmap[:BlockSize])
	encodeInodes(img.inodes, img.data[img.itab*BlockSize:])
	return img.data
}

// dirBlock accumulates directory entries for one block.
type dirBlock struct {
	ents []Dirent
}

func newDirBlock() *dirBlock {
	return &dirBlock{ents: make([]Dirent, DirentsPerBlock)}
}

func (d *dirBlock) set(slot int, e Dirent) {
	d.ents[slot] = e
}

func (d *dirBlock) encodeTo(buf []byte) {
	encodeDirents(d.ents, buf)
}

// Format writes a fresh empty volume onto dev: superblock, bitmaps, an
// inode table sized for numInodes, and a root directory holding only its
// `.` and `..` entries.
func Format(dev BlockDevice, numInodes int) error {
	if dev.NumBlocks() < 8 {
		return fmt.Errorf("%w: device too small to format", ErrInvalid)
	}
	img := newImage(dev.NumBlocks(), numInodes)

	const t = 0x50000000
	rootBlk := img.takeBlk()
	root := newDirBlock()
	root.set(0, Dirent{Valid: true, IsDir: true, Inode: 1, Name: "."})
	root.set(1, Dirent{Valid: true, IsDir: true, Inode: 1, Name: ".."})
	root.encodeTo(img.blk(rootBlk))
	img.inodes[1] = Inode{
		Uid: 1000, Gid: 1000, Mode: S_IFDIR | 0777,
		Ctime: t, Mtime: t,
		Size: 2 * DirentSize, Nlink: 2,
		Direct: [NDirect]uint32{uint32(rootBlk)},
	}

	data := img.finish()
	return dev.WriteBlocks(0, len(data)/BlockSize, data)
}

// BuildTestImage produces the deterministic 1024-block test image: a root
// directory with a 1000-byte /file.A (hard-linked as /file_link.A), a
// /dir1 subdirectory holding a two-block /dir1/file.2 with its direct
// pointers reversed, an empty /dir1/file.0 and the 269KB /dir1/file.270
// exercising both indirection levels, plus /file.7 spilling into indir_1.
// Two deliberately invalid entries are planted in the root for checker
// tests. Inumbers are fixed: root=1, file.A=2, dir1=3, file.2=4, file.0=5,
// file.7=6, file.270=7.
func BuildTestImage() []byte {
	img := newImage(1024, 64)
	const t = 0x50000000

	rootBlk := img.takeBlk() // 7
	root := newDirBlock()
	root.set(0, Dirent{Valid: true, IsDir: true, Inode: 1, Name: "."})
	root.set(1, Dirent{Valid: true, IsDir: true, Inode: 1, Name: ".."})
	img.inodes[1] = Inode{
		Uid: 1000, Gid: 1000, Mode: S_IFDIR | 0777,
		Ctime: t, Mtime: t,
		Size: 2 * DirentSize, Nlink: 2,
		Direct: [NDirect]uint32{uint32(rootBlk)},
	}

	// /file.A, 1000 bytes, behind a planted invalid entry
	f1Blk := img.takeBlk() // 8
	root.set(2, Dirent{IsDir: false, Inode: 1717, Name: "file.A"})
	root.set(3, Dirent{Valid: true, Inode: 2, Name: "file.A"})
	fill(img.blk(f1Blk)[:1000], 'A')
	img.inodes[2] = Inode{
		Uid: 1000, Gid: 1000, Mode: S_IFREG | 0777,
		Ctime: t + 200, Mtime: t + 200,
		Size: 1000, Nlink: 2,
		Direct: [NDirect]uint32{uint32(f1Blk)},
	}
	img.inodes[1].Size += DirentSize

	// /file_link.A, second link to the same inode
	root.set(4, Dirent{Valid: true, Inode: 2, Name: "file_link.A"})
	img.inodes[1].Size += DirentSize

	// /dir1, with another planted invalid entry in front
	d1Blk := img.takeBlk() // 9
	d1 := newDirBlock()
	root.set(5, Dirent{IsDir: true, Inode: 2, Name: "dir1"})
	root.set(6, Dirent{Valid: true, IsDir: true, Inode: 3, Name: "dir1"})
	d1.set(0, Dirent{Valid: true, IsDir: true, Inode: 3, Name: "."})
	d1.set(1, Dirent{Valid: true, IsDir: true, Inode: 1, Name: ".."})
	img.inodes[3] = Inode{
		Uid: 1000, Gid: 1000, Mode: S_IFDIR | 0755,
		Ctime: t + 400, Mtime: t + 400,
		Size: 2 * DirentSize, Nlink: 3,
		Direct: [NDirect]uint32{uint32(d1Blk)},
	}
	img.inodes[1].Size += DirentSize
	img.inodes[1].Nlink++ // back link from /dir1/..

	// /dir1/file.2, 2012 bytes across two blocks, direct pointers reversed
	f2Blk1 := img.takeBlk() // 10
	f2Blk2 := img.takeBlk() // 11
	d1.set(3, Dirent{Valid: true, Inode: 4, Name: "file.2"})
	fill(img.blk(f2Blk1), '2')
	fill(img.blk(f2Blk2), '2')
	img.inodes[4] = Inode{
		Uid: 1000, Gid: 1000, Mode: S_IFREG | 0777,
		Ctime: t + 200, Mtime: t + 200,
		Size: 2012, Nlink: 1,
		Direct: [NDirect]uint32{uint32(f2Blk2), uint32(f2Blk1)},
	}
	img.inodes[3].Size += DirentSize

	// /dir1/file.0, zero-length
	d1.set(5, Dirent{Valid: true, Inode: 5, Name: "file.0"})
	img.inodes[5] = Inode{
		Uid: 1000, Gid: 1000, Mode: S_IFREG | 0777,
		Ctime: t + 200, Mtime: t + 200,
		Size: 0, Nlink: 1,
	}
	img.inodes[3].Size += DirentSize

	// /file.7, six direct blocks plus one through indir_1
	f4Ind := img.takeBlk() // 12
	root.set(7, Dirent{Valid: true, Inode: 6, Name: "file.7"})
	in4 := Inode{
		Uid: 1000, Gid: 1000, Mode: S_IFREG | 0777,
		Ctime: t + 300, Mtime: t + 300,
		Size: 6*1024 + 500, Nlink: 1,
		Indir1: uint32(f4Ind),
	}
	remain := int(in4.Size)
	for i := 0; i < NDirect; i++ {
		b := img.takeBlk() // 13..18
		in4.Direct[i] = uint32(b)
		remain -= fill(img.blk(b)[:min(remain, BlockSize)], '4')
	}
	b := img.takeBlk() // 19
	putPtr(img.blk(f4Ind), 0, uint32(b))
	fill(img.blk(b)[:remain], '4')
	img.inodes[6] = in4
	img.inodes[1].Size += DirentSize

	// /dir1/file.270, 269KB + 721: full indir_1 page plus 8 blocks through
	// indir_2
	f5Ind1 := img.takeBlk()  // 20
	f5Ind2 := img.takeBlk()  // 21
	f5Ind20 := img.takeBlk() // 22
	d1.set(6, Dirent{Valid: true, Inode: 7, Name: "file.270"})
	in5 := Inode{
		Uid: 1000, Gid: 1000, Mode: S_IFREG | 0777,
		Ctime: t + 300, Mtime: t + 300,
		Size: 269*1024 + 721, Nlink: 1,
		Indir1: uint32(f5Ind1),
		Indir2: uint32(f5Ind2),
	}
	remain = int(in5.Size)
	for i := 0; i < NDirect; i++ {
		b := img.takeBlk()
		in5.Direct[i] = uint32(b)
		remain -= fill(img.blk(b)[:min(remain, BlockSize)], 'K')
	}
	for i := 0; i < PtrsPerBlock; i++ {
		b := img.takeBlk()
		putPtr(img.blk(f5Ind1), i, uint32(b))
		remain -= fill(img.blk(b)[:min(remain, BlockSize)], 'K')
	}
	putPtr(img.blk(f5Ind2), 0, uint32(f5Ind20))
	for i := 0; remain > 0; i++ {
		b := img.takeBlk()
		putPtr(img.blk(f5Ind20), i, uint32(b))
		remain -= fill(img.blk(b)[:min(remain, BlockSize)], 'K')
	}
	img.inodes[7] = in5
	img.inodes[3].Size += DirentSize

	root.encodeTo(img.blk(rootBlk))
	d1.encodeTo(img.blk(d1Blk))
	return img.finish()
}

func fill(buf []byte, c byte) int {
	for i := range buf {
		buf[i] = c
	}
	return len(buf)
}

func putPtr(blk []byte, i int, b uint32) {
	blk[i*4] = byte(b)
	blk[i*4+1] = byte(b >> 8)
	blk[i*4+2] = byte(b >> 16)
	blk[i*4+3] = byte(b >> 24)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
