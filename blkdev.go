package fsx600

import (
	"fmt"
	"os"
)

// BlockSize is the fixed device block size in bytes. Every transfer is a
// whole number of blocks.
const BlockSize = 1024

// BlockDevice is the only object allowed to touch storage. The two shipped
// implementations are FileDevice (an image file) and MemDevice (an in-memory
// image used by tests and by compressed image handling).
type BlockDevice interface {
	// NumBlocks returns the total number of blocks on the device
	NumBlocks() int
	// ReadBlocks reads n contiguous blocks starting at first into buf
	ReadBlocks(first, n int, buf []byte) error
	// WriteBlocks writes n contiguous blocks starting at first from buf
	WriteBlocks(first, n int, buf []byte) error
	// Flush forces n blocks starting at first to stable storage
	Flush(first, n int) error
	// Close releases the device
	Close() error
}

func checkRange(dev BlockDevice, first, n int, buf []byte) error {
	if first < 0 || n < 0 || first+n > dev.NumBlocks() {
		return fmt.Errorf("%w: blocks [%d,%d) of %d", ErrBadAddr, first, first+n, dev.NumBlocks())
	}
	if buf != nil && len(buf) < n*BlockSize {
		return fmt.Errorf("%w: %d bytes for %d blocks", ErrBadSize, len(buf), n)
	}
	return nil
}

// FileDevice is a block device backed by a regular file.
type FileDevice struct {
	f      *os.File
	blocks int
}

// OpenFileDevice opens path as a block device. The file size is truncated
// down to a whole number of blocks.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, blocks: int(st.Size() / BlockSize)}, nil
}

func (d *FileDevice) NumBlocks() int {
	return d.blocks
}

func (d *FileDevice) ReadBlocks(first, n int, buf []byte) error {
	if err := checkRange(d, first, n, buf); err != nil {
		return err
	}
	if _, err := d.f.ReadAt(buf[:n*BlockSize], int64(first)*BlockSize); err != nil {
		return fmt.Errorf("%w: read blocks [%d,%d): %s", ErrIO, first, first+n, err)
	}
	return nil
}

func (d *FileDevice) WriteBlocks(first, n int, buf []byte) error {
	if err := checkRange(d, first, n, buf); err != nil {
		return err
	}
	if _, err := d.f.WriteAt(buf[:n*BlockSize], int64(first)*BlockSize); err != nil {
		return fmt.Errorf("%w: write blocks [%d,%d): %s", ErrIO, first, first+n, err)
	}
	return nil
}

func (d *FileDevice) Flush(first, n int) error {
	if err := checkRange(d, first, n, nil); err != nil {
		return err
	}
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("%w: flush: %s", ErrIO, err)
	}
	return nil
}

func (d *FileDevice) Close() error {
	return d.f.Close()
}

// MemDevice is a block device kept entirely in memory.
type MemDevice struct {
	data []byte
}

// NewMemDevice returns an in-memory device of blocks zeroed blocks.
func NewMemDevice(blocks int) *MemDevice {
	return &MemDevice{data: make([]byte, blocks*BlockSize)}
}

// MemDeviceOf wraps data, truncated down to a whole number of blocks.
func MemDeviceOf(data []byte) *MemDevice {
	return &MemDevice{data: data[:len(data)/BlockSize*BlockSize]}
}

// Bytes returns the underlying image, aliased not copied.
func (d *MemDevice) Bytes() []byte {
	return d.data
}

func (d *MemDevice) NumBlocks() int {
	return len(d.data) / BlockSize
}

func (d *MemDevice) ReadBlocks(first, n int, buf []byte) error {
	if err := checkRange(d, first, n, buf); err != nil {
		return err
	}
	copy(buf, d.data[first*BlockSize:(first+n)*BlockSize])
	return nil
}

func (d *MemDevice) WriteBlocks(first, n int, buf []byte) error {
	if err := checkRange(d, first, n, buf); err != nil {
		return err
	}
	copy(d.data[first*BlockSize:(first+n)*BlockSize], buf)
	return nil
}

func (d *MemDevice) Flush(first, n int) error {
	return checkRange(d, first, n, nil)
}

func (d *MemDevice) Close() error {
	return nil
}
