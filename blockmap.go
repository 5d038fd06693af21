package fsx600

import "encoding/binary"

// zeroBlock is a block of 0s used to initialise freshly allocated blocks.
var zeroBlock [BlockSize]byte

// allocZeroedBlock allocates a fresh block and zero-fills it on disk before
// any pointer to it is stored, so readers never see stale contents.
func (v *Volume) allocZeroedBlock() (int, error) {
	b, err := v.AllocBlock()
	if err != nil {
		return 0, err
	}
	if err := v.dev.WriteBlocks(b, 1, zeroBlock[:]); err != nil {
		return 0, err
	}
	return b, nil
}

func (v *Volume) readPtrs(b int) ([]uint32, error) {
	buf := make([]byte, BlockSize)
	if err := v.dev.ReadBlocks(b, 1, buf); err != nil {
		return nil, err
	}
	ptrs := make([]uint32, PtrsPerBlock)
	for i := range ptrs {
		ptrs[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return ptrs, nil
}

func (v *Volume) writePtrs(b int, ptrs []uint32) error {
	buf := make([]byte, BlockSize)
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(buf[i*4:], p)
	}
	return v.dev.WriteBlocks(b, 1, buf)
}

// blockOf maps the n-th logical block of the file at inum to a physical
// block number: indices 0..5 through the direct pointers, the next
// PtrsPerBlock through indir_1, the next PtrsPerBlock² through indir_2.
// A missing block is allocated when alloc is set, otherwise 0 is returned.
// Allocation failures mid-walk leave the partial expansion in place.
func (v *Volume) blockOf(inum, n int, alloc bool) (int, error) {
	in := v.inode(inum)

	if n < NDirect {
		if in.Direct[n] == 0 {
			if !alloc {
				return 0, nil
			}
			b, err := v.allocZeroedBlock()
			if err != nil {
				return 0, err
			}
			in.Direct[n] = uint32(b)
			v.markInode(inum)
		}
		return int(in.Direct[n]), nil
	}

	n -= NDirect
	if n < PtrsPerBlock {
		if in.Indir1 == 0 {
			if !alloc {
				return 0, nil
			}
			b, err := v.allocZeroedBlock()
			if err != nil {
				return 0, err
			}
			in.Indir1 = uint32(b)
			v.markInode(inum)
		}
		ptrs, err := v.readPtrs(int(in.Indir1))
		if err != nil {
			return 0, err
		}
		if ptrs[n] == 0 {
			if !alloc {
				return 0, nil
			}
			b, err := v.allocZeroedBlock()
			if err != nil {
				return 0, err
			}
			ptrs[n] = uint32(b)
			if err := v.writePtrs(int(in.Indir1), ptrs); err != nil {
				return 0, err
			}
		}
		return int(ptrs[n]), nil
	}

	n -= PtrsPerBlock
	if n >= PtrsPerBlock*PtrsPerBlock {
		return 0, nil // unaddressable
	}
	m, k := n/PtrsPerBlock, n%PtrsPerBlock

	if in.Indir2 == 0 {
		if !alloc {
			return 0, nil
		}
		b, err := v.allocZeroedBlock()
		if err != nil {
			return 0, err
		}
		in.Indir2 = uint32(b)
		v.markInode(inum)
	}
	outer, err := v.readPtrs(int(in.Indir2))
	if err != nil {
		return 0, err
	}
	if outer[m] == 0 {
		if !alloc {
			return 0, nil
		}
		b, err := v.allocZeroedBlock()
		if err != nil {
			return 0, err
		}
		outer[m] = uint32(b)
		if err := v.writePtrs(int(in.Indir2), outer); err != nil {
			return 0, err
		}
	}
	inner, err := v.readPtrs(int(outer[m]))
	if err != nil {
		return 0, err
	}
	if inner[k] == 0 {
		if !alloc {
			return 0, nil
		}
		b, err := v.allocZeroedBlock()
		if err != nil {
			return 0, err
		}
		inner[k] = uint32(b)
		if err := v.writePtrs(int(outer[m]), inner); err != nil {
			return 0, err
		}
	}
	return int(inner[k]), nil
}

// getFileBlk is blockOf plus an optional read of the resolved block into
// buf. A failed read zero-fills buf and returns the device's error.
func (v *Volume) getFileBlk(inum, n int, buf []byte, alloc bool) (int, error) {
	blkno, err := v.blockOf(inum, n, alloc)
	if err != nil {
		return 0, err
	}
	if blkno > 0 && buf != nil {
		if err := v.dev.ReadBlocks(blkno, 1, buf); err != nil {
			for i := range buf {
				buf[i] = 0
			}
			return 0, err
		}
	}
	return blkno, nil
}

// truncateBlocks frees every data and index block of the file at inum:
// the indir_2 tree leaves-first, then the indir_1 page, then the direct
// blocks. All pointer fields in the inode are cleared.
func (v *Volume) truncateBlocks(inum int) error {
	in := v.inode(inum)

	if in.Indir2 != 0 {
		outer, err := v.readPtrs(int(in.Indir2))
		if err != nil {
			return err
		}
		for _, p := range outer {
			if p == 0 {
				continue
			}
			inner, err := v.readPtrs(int(p))
			if err != nil {
				return err
			}
			for _, q := range inner {
				if q != 0 {
					v.FreeBlock(int(q))
				}
			}
			v.FreeBlock(int(p))
		}
		v.FreeBlock(int(in.Indir2))
		in.Indir2 = 0
	}

	if in.Indir1 != 0 {
		ptrs, err := v.readPtrs(int(in.Indir1))
		if err != nil {
			return err
		}
		for _, p := range ptrs {
			if p != 0 {
				v.FreeBlock(int(p))
			}
		}
		v.FreeBlock(int(in.Indir1))
		in.Indir1 = 0
	}

	for i := range in.Direct {
		if in.Direct[i] != 0 {
			v.FreeBlock(int(in.Direct[i]))
			in.Direct[i] = 0
		}
	}
	return nil
}
