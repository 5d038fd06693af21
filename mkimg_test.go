package fsx600_test

import (
	"bytes"
	"io/fs"
	"testing"

	"github.com/KarpelesLab/fsx600"
)

func TestBuildTestImageDeterministic(t *testing.T) {
	a := fsx600.BuildTestImage()
	b := fsx600.BuildTestImage()
	if !bytes.Equal(a, b) {
		t.Errorf("two builds of the test image differ")
	}
	if len(a) != 1024*fsx600.BlockSize {
		t.Errorf("expected a 1024-block image, got %d bytes", len(a))
	}
}

func TestTestImageContents(t *testing.T) {
	v := mountTestImage(t)

	st, err := v.Getattr("/file.A")
	if err != nil {
		t.Fatalf("getattr /file.A failed: %s", err)
	}
	if st.Size != 1000 || st.Nlink != 2 || st.Uid != 1000 {
		t.Errorf("unexpected /file.A stat: %+v", st)
	}

	buf := make([]byte, 1000)
	if n, err := v.Read("/file.A", buf, 0); err != nil || n != 1000 {
		t.Fatalf("read /file.A: (%d, %v)", n, err)
	}
	for _, c := range buf {
		if c != 'A' {
			t.Fatalf("unexpected byte %q in /file.A", c)
		}
	}

	// /file.7 spans the directs and one indir_1 entry
	st, _ = v.Getattr("/file.7")
	if st.Size != 6*1024+500 {
		t.Errorf("unexpected /file.7 size %d", st.Size)
	}
	if n, err := v.Read("/file.7", buf[:500], 6*1024); err != nil || n != 500 {
		t.Fatalf("read tail of /file.7: (%d, %v)", n, err)
	}
	for _, c := range buf[:500] {
		if c != '4' {
			t.Fatalf("unexpected byte %q in /file.7 tail", c)
		}
	}

	// /dir1/file.270 reaches through indir_2
	st, _ = v.Getattr("/dir1/file.270")
	if st.Size != 269*1024+721 {
		t.Errorf("unexpected /dir1/file.270 size %d", st.Size)
	}
	if n, err := v.Read("/dir1/file.270", buf[:721], 269*1024); err != nil || n != 721 {
		t.Fatalf("read tail of /dir1/file.270: (%d, %v)", n, err)
	}
	for _, c := range buf[:721] {
		if c != 'K' {
			t.Fatalf("unexpected byte %q in /dir1/file.270 tail", c)
		}
	}

	// /dir1/file.2 has its direct blocks reversed on purpose; the content
	// must still read back in logical order
	if n, err := v.Read("/dir1/file.2", buf[:100], 1024); err != nil || n != 100 {
		t.Fatalf("read /dir1/file.2: (%d, %v)", n, err)
	}
	for _, c := range buf[:100] {
		if c != '2' {
			t.Fatalf("unexpected byte %q in /dir1/file.2", c)
		}
	}

	// directory sizes count only valid entries
	st, _ = v.Getattr("/")
	if st.Size != 6*32 {
		t.Errorf("unexpected root size %d", st.Size)
	}
	st, _ = v.Getattr("/dir1")
	if st.Size != 5*32 {
		t.Errorf("unexpected /dir1 size %d", st.Size)
	}

	// the planted invalid entries are invisible
	ents, err := v.Readdir("/", true)
	if err != nil {
		t.Fatalf("readdir failed: %s", err)
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		names = append(names, e.Name)
	}
	want := []string{"file.A", "file_link.A", "dir1", "file.7"}
	if len(names) != len(want) {
		t.Fatalf("unexpected root entries %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestFormatEmptyVolume(t *testing.T) {
	v, _ := freshVolume(t)

	ents, err := v.Readdir("/", true)
	if err != nil {
		t.Fatalf("readdir failed: %s", err)
	}
	if len(ents) != 0 {
		t.Errorf("fresh volume is not empty: %+v", ents)
	}

	st, err := v.Getattr("/")
	if err != nil {
		t.Fatalf("getattr / failed: %s", err)
	}
	if st.Ino != 1 || st.Size != 64 || st.Nlink != 2 {
		t.Errorf("unexpected fresh root: %+v", st)
	}
}

func TestVolumeAsFS(t *testing.T) {
	v := mountTestImage(t)

	data, err := fs.ReadFile(v, "file.A")
	if err != nil {
		t.Fatalf("fs.ReadFile failed: %s", err)
	}
	if len(data) != 1000 {
		t.Errorf("expected 1000 bytes, got %d", len(data))
	}

	st, err := fs.Stat(v, "dir1/file.2")
	if err != nil {
		t.Fatalf("fs.Stat failed: %s", err)
	}
	if st.Size() != 2012 || st.IsDir() {
		t.Errorf("unexpected stat: size %d", st.Size())
	}

	res, err := fs.Glob(v, "dir1/file.*")
	if err != nil {
		t.Fatalf("fs.Glob failed: %s", err)
	}
	if len(res) != 3 {
		t.Errorf("expected 3 matches, got %v", res)
	}

	var walked []string
	err = fs.WalkDir(v, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		walked = append(walked, p)
		return nil
	})
	if err != nil {
		t.Fatalf("fs.WalkDir failed: %s", err)
	}
	// ".", the four root entries, dir1's three files
	if len(walked) != 8 {
		t.Errorf("walked %d paths, expected 8: %v", len(walked), walked)
	}
}
