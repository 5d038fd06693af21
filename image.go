package fsx600

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Open opens and mounts an image file. Plain images are accessed in place
// through a FileDevice; zstd- or xz-compressed images are detected by their
// magic and inflated into an in-memory device, which makes compressed
// images convenient for inspection while keeping any mutation of them
// transient.
func Open(name string) (*Volume, error) {
	head := make([]byte, 6)
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(f, head); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidImage, err)
	}

	switch {
	case bytes.Equal(head[:4], zstdMagic), bytes.Equal(head, xzMagic):
		defer f.Close()
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		data, err := inflate(f, bytes.Equal(head[:4], zstdMagic))
		if err != nil {
			return nil, err
		}
		return Mount(MemDeviceOf(data))
	default:
		f.Close()
		dev, err := OpenFileDevice(name)
		if err != nil {
			return nil, err
		}
		v, err := Mount(dev)
		if err != nil {
			dev.Close()
			return nil, err
		}
		return v, nil
	}
}

func inflate(r io.Reader, isZstd bool) ([]byte, error) {
	if isZstd {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	}
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(xr)
}
