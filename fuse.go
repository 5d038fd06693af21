//go:build fuse

package fsx600

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// FUSE bridge: exposes a mounted Volume through the go-fuse node API. The
// FUSE dispatcher serialises upcalls, matching the volume's single-owner
// contract.

// fuseNode binds one fsx600 inode into the go-fuse inode tree.
type fuseNode struct {
	fs.Inode
	v    *Volume
	inum int
}

var _ = (fs.InodeEmbedder)((*fuseNode)(nil))
var _ = (fs.NodeLookuper)((*fuseNode)(nil))
var _ = (fs.NodeGetattrer)((*fuseNode)(nil))
var _ = (fs.NodeSetattrer)((*fuseNode)(nil))
var _ = (fs.NodeMknoder)((*fuseNode)(nil))
var _ = (fs.NodeMkdirer)((*fuseNode)(nil))
var _ = (fs.NodeUnlinker)((*fuseNode)(nil))
var _ = (fs.NodeRmdirer)((*fuseNode)(nil))
var _ = (fs.NodeRenamer)((*fuseNode)(nil))
var _ = (fs.NodeLinker)((*fuseNode)(nil))
var _ = (fs.NodeOpener)((*fuseNode)(nil))
var _ = (fs.NodeReader)((*fuseNode)(nil))
var _ = (fs.NodeWriter)((*fuseNode)(nil))
var _ = (fs.NodeReaddirer)((*fuseNode)(nil))
var _ = (fs.NodeReadlinker)((*fuseNode)(nil))
var _ = (fs.NodeStatfser)((*fuseNode)(nil))

// MountFUSE mounts v at mountpoint and returns the serving fuse server.
// Call Wait() on it to block until unmount.
func MountFUSE(v *Volume, mountpoint string) (*fuse.Server, error) {
	root := &fuseNode{v: v, inum: int(v.Super.RootInode)}
	return fs.Mount(mountpoint, root, &fs.Options{MountOptions: fuse.MountOptions{SingleThreaded: true}})
}

func fuseErr(err error) syscall.Errno {
	return syscall.Errno(-Errno(err))
}

// callerCreds extracts the requesting uid/gid, falling back to the process
// ids when the dispatcher does not provide them.
func callerCreds(ctx context.Context) Creds {
	if caller, ok := fuse.FromContext(ctx); ok {
		return Creds{Uid: caller.Uid, Gid: caller.Gid}
	}
	return credsFrom(ctx)
}

func (n *fuseNode) fillAttr(attr *fuse.Attr) {
	st := n.v.StatInode(n.inum)
	attr.Ino = uint64(st.Ino)
	attr.Size = uint64(st.Size)
	attr.Blocks = uint64(st.Blocks)
	attr.Mode = st.Mode
	attr.Nlink = st.Nlink
	attr.Blksize = BlockSize
	attr.Atime = uint64(st.Atime)
	attr.Mtime = uint64(st.Mtime)
	attr.Ctime = uint64(st.Ctime)
	attr.Owner.Uid = st.Uid
	attr.Owner.Gid = st.Gid
}

func (n *fuseNode) newChild(ctx context.Context, inum int, out *fuse.EntryOut) *fs.Inode {
	child := &fuseNode{v: n.v, inum: inum}
	mode := n.v.inode(inum).Mode & S_IFMT
	ino := n.NewInode(ctx, child, fs.StableAttr{Mode: mode, Ino: uint64(inum)})
	child.fillAttr(&out.Attr)
	return ino
}

func (n *fuseNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	inum, err := n.v.Lookup(n.inum, name)
	if err != nil {
		return nil, fuseErr(err)
	}
	return n.newChild(ctx, inum, out), 0
}

func (n *fuseNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.fillAttr(&out.Attr)
	return 0
}

// Setattr only supports truncation to length 0, the single length the
// format can express.
func (n *fuseNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if sz, ok := in.GetSize(); ok {
		if err := n.v.truncateInode(n.inum, int64(sz)); err != nil {
			return fuseErr(err)
		}
		if err := n.v.FlushMetadata(); err != nil {
			return fuseErr(err)
		}
	}
	n.fillAttr(&out.Attr)
	return 0
}

func (n *fuseNode) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	inum, err := n.v.mkentry(n.inum, name, mode, S_IFREG, callerCreds(ctx))
	if err != nil {
		return nil, fuseErr(err)
	}
	return n.newChild(ctx, inum, out), 0
}

func (n *fuseNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	inum, err := n.v.mkentry(n.inum, name, mode, S_IFDIR, callerCreds(ctx))
	if err != nil {
		return nil, fuseErr(err)
	}
	return n.newChild(ctx, inum, out), 0
}

func (n *fuseNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return fuseErr(n.v.unlinkEntry(n.inum, name))
}

func (n *fuseNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return fuseErr(n.v.rmdirEntry(n.inum, name))
}

func (n *fuseNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	dst, ok := newParent.(*fuseNode)
	if !ok {
		return syscall.EINVAL
	}
	return fuseErr(n.v.renameEntry(n.inum, name, dst.inum, newName))
}

func (n *fuseNode) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	src, ok := target.(*fuseNode)
	if !ok {
		return nil, syscall.EINVAL
	}
	if err := n.v.linkEntry(src.inum, n.inum, name); err != nil {
		return nil, fuseErr(err)
	}
	return n.newChild(ctx, src.inum, out), 0
}

func (n *fuseNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, 0, 0
}

func (n *fuseNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	got, err := n.v.readInode(n.inum, dest, off)
	if err != nil {
		return nil, fuseErr(err)
	}
	return fuse.ReadResultData(dest[:got]), 0
}

func (n *fuseNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	wrote, err := n.v.writeInode(n.inum, data, off)
	if err != nil {
		return uint32(wrote), fuseErr(err)
	}
	return uint32(wrote), 0
}

func (n *fuseNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	ents, err := n.v.ReadDirInode(n.inum, false)
	if err != nil {
		return nil, fuseErr(err)
	}
	res := make([]fuse.DirEntry, 0, len(ents))
	for _, e := range ents {
		res = append(res, fuse.DirEntry{
			Name: e.Name,
			Ino:  uint64(e.Inode),
			Mode: n.v.inode(int(e.Inode)).Mode & S_IFMT,
		})
	}
	return fs.NewListDirStream(res), 0
}

func (n *fuseNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	in := n.v.inode(n.inum)
	if !in.IsSymlink() {
		return nil, syscall.EINVAL
	}
	buf := make([]byte, in.Size)
	if _, err := n.v.readInode(n.inum, buf, 0); err != nil {
		return nil, fuseErr(err)
	}
	return buf, 0
}

func (n *fuseNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	st := n.v.Statfs()
	out.Bsize = st.BlockSize
	out.Blocks = uint64(st.Blocks)
	out.Bfree = uint64(st.BlocksFree)
	out.Bavail = uint64(st.BlocksFree)
	out.Files = uint64(st.Inodes)
	out.Ffree = uint64(st.InodesFree)
	out.NameLen = st.NameMax
	return 0
}
