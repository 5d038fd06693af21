package fsx600_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/KarpelesLab/fsx600"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

func TestOpenPlainImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.img")
	if err := os.WriteFile(path, fsx600.BuildTestImage(), 0666); err != nil {
		t.Fatalf("failed to write image: %s", err)
	}

	v, err := fsx600.Open(path)
	if err != nil {
		t.Fatalf("failed to open image: %s", err)
	}
	defer v.Close()

	data, err := fs.ReadFile(v, "dir1/file.2")
	if err != nil {
		t.Fatalf("fs.ReadFile failed: %s", err)
	}
	if len(data) != 2012 {
		t.Errorf("expected 2012 bytes, got %d", len(data))
	}

	// mutations through a file-backed device hit the image file
	if err := v.Mkdir(testCtx(), "/fresh", 0755); err != nil {
		t.Fatalf("mkdir failed: %s", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("close failed: %s", err)
	}
	v2, err := fsx600.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %s", err)
	}
	defer v2.Close()
	if _, err := v2.Getattr("/fresh"); err != nil {
		t.Errorf("mkdir did not persist: %s", err)
	}
}

func TestOpenZstdImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.img.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %s", err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("failed to create zstd writer: %s", err)
	}
	if _, err := enc.Write(fsx600.BuildTestImage()); err != nil {
		t.Fatalf("compression failed: %s", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to finish stream: %s", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close file: %s", err)
	}

	v, err := fsx600.Open(path)
	if err != nil {
		t.Fatalf("failed to open compressed image: %s", err)
	}
	defer v.Close()

	data, err := fs.ReadFile(v, "file.A")
	if err != nil {
		t.Fatalf("fs.ReadFile failed: %s", err)
	}
	if len(data) != 1000 || data[0] != 'A' {
		t.Errorf("unexpected content (%d bytes)", len(data))
	}
}

func TestOpenXzImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.img.xz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %s", err)
	}
	enc, err := xz.NewWriter(f)
	if err != nil {
		t.Fatalf("failed to create xz writer: %s", err)
	}
	if _, err := enc.Write(fsx600.BuildTestImage()); err != nil {
		t.Fatalf("compression failed: %s", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to finish stream: %s", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close file: %s", err)
	}

	v, err := fsx600.Open(path)
	if err != nil {
		t.Fatalf("failed to open compressed image: %s", err)
	}
	defer v.Close()

	st, err := v.Getattr("/dir1/file.270")
	if err != nil {
		t.Fatalf("getattr failed: %s", err)
	}
	if st.Size != 269*1024+721 {
		t.Errorf("unexpected size %d", st.Size)
	}
}

func TestOpenGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	if err := os.WriteFile(path, []byte("not an image at all"), 0666); err != nil {
		t.Fatalf("failed to write file: %s", err)
	}
	if _, err := fsx600.Open(path); err == nil {
		t.Errorf("expected an error opening garbage, got none")
	}
}
