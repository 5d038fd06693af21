package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/KarpelesLab/fsx600"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

const usage = `imgck - fsx600 image consistency checker

Usage:
  imgck <image_file>    Print a summary of the image and report
                        structural inconsistencies

The image may be plain, zstd-compressed or xz-compressed. Inconsistencies
are printed as ***ERROR*** lines; the exit code stays 0 once the image
could be read.
`

func main() {
	if len(os.Args) != 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	data, err := readImage(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if err := fsx600.Check(data, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// readImage loads an image file, inflating it first when it carries a zstd
// or xz magic.
func readImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x28, 0xb5, 0x2f, 0xfd}):
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case len(data) >= 6 && bytes.Equal(data[:6], []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(r)
	default:
		return data, nil
	}
}
