package main

import (
	"fmt"
	"os"

	"github.com/KarpelesLab/fsx600"
)

const usage = `mkimg - fsx600 test image builder

Usage:
  mkimg <image_file>    Write the deterministic 1024-block test image

The image contains a root directory plus a fixed set of files and
subdirectories with well-known inumbers, suitable as test input for the
file system and for imgck.
`

func main() {
	if len(os.Args) != 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	data := fsx600.BuildTestImage()
	if err := os.WriteFile(os.Args[1], data, 0777); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
