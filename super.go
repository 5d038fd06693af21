package fsx600

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"sort"
)

// Superblock holds the file system parameters stored in block 0. The sizes
// are all in blocks and fixed at format time.
type Superblock struct {
	Magic         uint32
	InodeMapSz    uint32 // inode bitmap size
	InodeRegionSz uint32 // inode table size
	BlockMapSz    uint32 // block bitmap size
	NumBlocks     uint32 // total blocks, including superblock, bitmaps and inodes
	RootInode     uint32 // always inode 1
}

// UnmarshalBinary decodes a superblock from the first block of an image.
func (s *Superblock) UnmarshalBinary(data []byte) error {
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, s); err != nil {
		return err
	}
	if s.Magic != Magic {
		return ErrInvalidImage
	}
	return nil
}

// MarshalBinary encodes the superblock padded to a full block.
func (s *Superblock) MarshalBinary() ([]byte, error) {
	var w bytes.Buffer
	if err := binary.Write(&w, binary.LittleEndian, s); err != nil {
		return nil, err
	}
	return append(w.Bytes(), make([]byte, BlockSize-w.Len())...), nil
}

// Volume is the in-memory mirror of a mounted image: the superblock, both
// allocation bitmaps and the full inode table, plus the dirty sets tracking
// which metadata blocks differ from the medium. A Volume is owned by a
// single host that serialises every operation; there is no internal locking.
type Volume struct {
	dev BlockDevice

	Super  Superblock
	imap   bitmap
	bmap   bitmap
	inodes []Inode

	// dirty metadata blocks, by index within each region
	dirtyInodes map[int]struct{}
	dirtyImap   map[int]struct{}
	dirtyBmap   map[int]struct{}
}

// Mount loads the superblock, both bitmaps and the inode table from dev.
// A magic mismatch is fatal.
func Mount(dev BlockDevice) (*Volume, error) {
	buf := make([]byte, BlockSize)
	if err := dev.ReadBlocks(0, 1, buf); err != nil {
		return nil, err
	}

	v := &Volume{
		dev:         dev,
		dirtyInodes: make(map[int]struct{}),
		dirtyImap:   make(map[int]struct{}),
		dirtyBmap:   make(map[int]struct{}),
	}
	if err := v.Super.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	sb := &v.Super
	if int(sb.NumBlocks) > dev.NumBlocks() || 1+int(sb.InodeMapSz+sb.BlockMapSz+sb.InodeRegionSz) > int(sb.NumBlocks) {
		return nil, fmt.Errorf("%w: region sizes exceed %d blocks", ErrInvalidImage, sb.NumBlocks)
	}

	v.imap = newBitmap(int(sb.InodeMapSz))
	if err := dev.ReadBlocks(v.imapStart(), int(sb.InodeMapSz), v.imap); err != nil {
		return nil, err
	}
	v.bmap = newBitmap(int(sb.BlockMapSz))
	if err := dev.ReadBlocks(v.bmapStart(), int(sb.BlockMapSz), v.bmap); err != nil {
		return nil, err
	}

	itab := make([]byte, int(sb.InodeRegionSz)*BlockSize)
	if err := dev.ReadBlocks(v.itabStart(), int(sb.InodeRegionSz), itab); err != nil {
		return nil, err
	}
	v.inodes = make([]Inode, int(sb.InodeRegionSz)*InodesPerBlock)
	if err := decodeInodes(itab, v.inodes); err != nil {
		return nil, err
	}

	log.Printf("fsx600: mounted volume, %d blocks, %d inodes, root %d",
		sb.NumBlocks, len(v.inodes), sb.RootInode)
	return v, nil
}

func (v *Volume) imapStart() int { return 1 }
func (v *Volume) bmapStart() int { return 1 + int(v.Super.InodeMapSz) }
func (v *Volume) itabStart() int {
	return 1 + int(v.Super.InodeMapSz+v.Super.BlockMapSz)
}

// dataStart is the first block number usable for file content.
func (v *Volume) dataStart() int {
	return v.itabStart() + int(v.Super.InodeRegionSz)
}

// NumInodes returns the capacity of the inode table.
func (v *Volume) NumInodes() int {
	return len(v.inodes)
}

func (v *Volume) inode(i int) *Inode {
	return &v.inodes[i]
}

// markInode records that the inode table block holding inode i must be
// written back on the next flush. Every mutation of an inode goes through
// this.
func (v *Volume) markInode(i int) {
	v.dirtyInodes[i/InodesPerBlock] = struct{}{}
}

func (v *Volume) markImap(i int) {
	v.dirtyImap[i/(BlockSize*8)] = struct{}{}
}

func (v *Volume) markBmap(b int) {
	v.dirtyBmap[b/(BlockSize*8)] = struct{}{}
}

// FlushMetadata writes every dirty inode table block and bitmap block to the
// device, then clears the dirty sets. A failed write surfaces as an error but
// the in-memory state is kept as is.
func (v *Volume) FlushMetadata() error {
	buf := make([]byte, BlockSize)
	for _, k := range sortedKeys(v.dirtyInodes) {
		encodeInodes(v.inodes[k*InodesPerBlock:(k+1)*InodesPerBlock], buf)
		if err := v.dev.WriteBlocks(v.itabStart()+k, 1, buf); err != nil {
			return err
		}
	}
	for _, k := range sortedKeys(v.dirtyImap) {
		if err := v.dev.WriteBlocks(v.imapStart()+k, 1, v.imap[k*BlockSize:(k+1)*BlockSize]); err != nil {
			return err
		}
	}
	for _, k := range sortedKeys(v.dirtyBmap) {
		if err := v.dev.WriteBlocks(v.bmapStart()+k, 1, v.bmap[k*BlockSize:(k+1)*BlockSize]); err != nil {
			return err
		}
	}
	v.dirtyInodes = make(map[int]struct{})
	v.dirtyImap = make(map[int]struct{})
	v.dirtyBmap = make(map[int]struct{})
	return nil
}

func sortedKeys(m map[int]struct{}) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Close flushes pending metadata, forces the device to stable storage and
// releases it. The device is closed even when the flush fails.
func (v *Volume) Close() error {
	err := v.FlushMetadata()
	if ferr := v.dev.Flush(0, v.dev.NumBlocks()); err == nil {
		err = ferr
	}
	if cerr := v.dev.Close(); err == nil {
		err = cerr
	}
	return err
}

// AllocInode returns the smallest free inumber (always ≥ 1, inode 0 is the
// reserved sentinel), with the inode record zeroed and both the inode and
// the bitmap marked dirty.
func (v *Volume) AllocInode() (int, error) {
	i := v.imap.firstFree(1, v.NumInodes())
	if i < 0 {
		return 0, ErrNoSpace
	}
	v.imap.set(i)
	v.inodes[i] = Inode{}
	v.markInode(i)
	v.markImap(i)
	return i, nil
}

// FreeInode releases inumber i. The caller must already have freed every
// block the inode pointed to.
func (v *Volume) FreeInode(i int) {
	v.imap.clear(i)
	v.markImap(i)
}

// AllocBlock returns the lowest-numbered free block, with its bitmap bit set
// and marked dirty.
func (v *Volume) AllocBlock() (int, error) {
	b := v.bmap.firstFree(v.dataStart(), int(v.Super.NumBlocks))
	if b < 0 {
		return 0, ErrNoSpace
	}
	v.bmap.set(b)
	v.markBmap(b)
	return b, nil
}

// FreeBlock releases block b. Block numbers inside the reserved metadata
// region are refused.
func (v *Volume) FreeBlock(b int) {
	if b < v.dataStart() || b >= int(v.Super.NumBlocks) {
		log.Printf("fsx600: refusing to free reserved block %d", b)
		return
	}
	v.bmap.clear(b)
	v.markBmap(b)
}

// FreeInodeCount returns the number of unallocated inodes.
func (v *Volume) FreeInodeCount() int {
	return v.NumInodes() - v.imap.popcount(v.NumInodes())
}

// FreeBlockCount returns the number of unallocated blocks.
func (v *Volume) FreeBlockCount() int {
	return int(v.Super.NumBlocks) - v.bmap.popcount(int(v.Super.NumBlocks))
}
