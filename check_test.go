package fsx600_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/KarpelesLab/fsx600"
)

func runCheck(t *testing.T, img []byte) string {
	t.Helper()
	var out bytes.Buffer
	if err := fsx600.Check(img, &out); err != nil {
		t.Fatalf("check failed: %s", err)
	}
	return out.String()
}

func TestCheckCleanImage(t *testing.T) {
	out := runCheck(t, fsx600.BuildTestImage())

	for _, want := range []string{
		"superblock: magic:  37363030",
		"            root inode: 1",
		"directory: inode 1",
		"  F 2 file.A",
		"  F 2 file_link.A",
		"  D 3 dir1",
		"directory: inode 3",
		"file: inode 7",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	if strings.Contains(out, "***ERROR***") {
		t.Errorf("clean image reported errors:\n%s", out)
	}
	if !strings.Contains(out, "unreachable inodes: \n") {
		t.Errorf("expected no unreachable inodes")
	}
	if !strings.Contains(out, "unreachable blocks: \n") {
		t.Errorf("expected no unreachable blocks")
	}
}

func TestCheckBadMagic(t *testing.T) {
	img := fsx600.BuildTestImage()
	img[3] = 0

	var out bytes.Buffer
	if err := fsx600.Check(img, &out); !errors.Is(err, fsx600.ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}

func TestCheckUnreachableInode(t *testing.T) {
	img := fsx600.BuildTestImage()
	// mark inode 40 allocated without any entry referencing it
	img[fsx600.BlockSize+40/8] |= 1 << (40 % 8)

	out := runCheck(t, img)
	if !strings.Contains(out, "unreachable inodes: 40 \n") {
		t.Errorf("inode 40 not reported unreachable:\n%s", out)
	}
}

func TestCheckBlockMarkedFree(t *testing.T) {
	img := fsx600.BuildTestImage()
	// clear the bitmap bit of block 8 (the /file.A data block)
	img[2*fsx600.BlockSize+1] &^= 1

	out := runCheck(t, img)
	if !strings.Contains(out, "***ERROR*** block 8 marked free") {
		t.Errorf("freed data block not reported:\n%s", out)
	}
	if !strings.Contains(out, "unreachable blocks: 8 \n") {
		t.Errorf("bitmap disagreement for block 8 not listed:\n%s", out)
	}
}

func TestCheckInodeMarkedFree(t *testing.T) {
	img := fsx600.BuildTestImage()
	// clear the inode bitmap bit of /file.7 (inode 6)
	img[fsx600.BlockSize] &^= 1 << 6

	out := runCheck(t, img)
	if !strings.Contains(out, "***ERROR*** inode 6 is marked free") {
		t.Errorf("freed inode not reported:\n%s", out)
	}
}

func TestCheckFreshVolume(t *testing.T) {
	_, dev := freshVolume(t)
	out := runCheck(t, dev.Bytes())

	if strings.Contains(out, "***ERROR***") {
		t.Errorf("fresh volume reported errors:\n%s", out)
	}
}

// a volume exercised through the operation layer must still pass the checker
func TestCheckAfterOperations(t *testing.T) {
	v, dev := freshVolume(t)

	if err := v.Mkdir(testCtx(), "/a", 0755); err != nil {
		t.Fatalf("mkdir failed: %s", err)
	}
	if err := v.Mknod(testCtx(), "/a/f", 0644); err != nil {
		t.Fatalf("mknod failed: %s", err)
	}
	if _, err := v.Write("/a/f", bytes.Repeat([]byte("K"), 10*1024), 0); err != nil {
		t.Fatalf("write failed: %s", err)
	}
	if err := v.Link("/a/f", "/a/g"); err != nil {
		t.Fatalf("link failed: %s", err)
	}
	if err := v.Rename("/a/g", "/a/h"); err != nil {
		t.Fatalf("rename failed: %s", err)
	}
	if err := v.Unlink("/a/h"); err != nil {
		t.Fatalf("unlink failed: %s", err)
	}
	if err := v.FlushMetadata(); err != nil {
		t.Fatalf("flush failed: %s", err)
	}

	out := runCheck(t, dev.Bytes())
	if strings.Contains(out, "***ERROR***") {
		t.Errorf("volume inconsistent after operations:\n%s", out)
	}
	if !strings.Contains(out, "unreachable blocks: \n") {
		t.Errorf("operations leaked blocks:\n%s", out)
	}
	if !strings.Contains(out, "unreachable inodes: \n") {
		t.Errorf("operations leaked inodes:\n%s", out)
	}
}
