package fsx600

import "strings"

// splitPath tokenises a '/'-delimited path. Empty tokens are discarded; a
// path with a trailing '/' gets a synthetic "." leaf so the last component
// is always well-defined.
func splitPath(p string) []string {
	toks := make([]string, 0, 8)
	for _, t := range strings.Split(p, "/") {
		if t != "" {
			toks = append(toks, t)
		}
	}
	if len(toks) > 0 && strings.HasSuffix(p, "/") {
		toks = append(toks, ".")
	}
	return toks
}

// walk resolves toks starting from the root inode.
func (v *Volume) walk(toks []string) (int, error) {
	inum := int(v.Super.RootInode)
	for _, t := range toks {
		next, err := v.Lookup(inum, t)
		if err != nil {
			return 0, err
		}
		inum = next
	}
	return inum, nil
}

// InodeOfPath resolves path to an inumber, walking every component from the
// root.
func (v *Volume) InodeOfPath(path string) (int, error) {
	return v.walk(splitPath(path))
}

// InodeOfPathDir resolves the directory part of path and returns the parent
// inumber plus the leaf name, which may not exist yet. The root itself has
// no parent: InodeOfPathDir("/") returns the root and an empty leaf.
func (v *Volume) InodeOfPathDir(path string) (int, string, error) {
	toks := splitPath(path)
	if len(toks) == 0 {
		return int(v.Super.RootInode), "", nil
	}
	inum, err := v.walk(toks[:len(toks)-1])
	if err != nil {
		return 0, "", err
	}
	return inum, toks[len(toks)-1], nil
}

// inodeOfPath is the internal spelling used by the io/fs adapter.
func (v *Volume) inodeOfPath(path string) (int, error) {
	return v.InodeOfPath(path)
}

// Lookup finds name in the directory at inum and returns the entry's
// inumber.
func (v *Volume) Lookup(inum int, name string) (int, error) {
	_, entno, ents, err := v.dirLookup(inum, name)
	if err != nil {
		return 0, err
	}
	return int(ents[entno].Inode), nil
}
