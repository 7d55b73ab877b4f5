package kcomp

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/absfs/absfs"
)

// normalizePath cleans name and strips leading separators so absolute and
// relative spellings refer to the same entry.
func normalizePath(name string) string {
	name = filepath.Clean(name)
	name = strings.TrimLeft(name, "/"+string(filepath.Separator))
	if name == "" {
		return "."
	}
	return name
}

// MemFS is a small in-memory filesystem implementing the absfs.Filer
// methods. Open handles share file contents, so a rename or truncate is
// visible through every handle.
type MemFS struct {
	mu    sync.RWMutex
	files map[string]*memNode
	dirs  map[string]bool
}

type memNode struct {
	mu      sync.Mutex
	data    []byte
	mode    fs.FileMode
	modTime time.Time
}

// NewMemFS creates a new in-memory filesystem
func NewMemFS() *MemFS {
	return &MemFS{
		files: make(map[string]*memNode),
		dirs:  map[string]bool{".": true},
	}
}

func (mfs *MemFS) Open(name string) (absfs.File, error) {
	return mfs.OpenFile(name, os.O_RDONLY, 0)
}

func (mfs *MemFS) Create(name string) (absfs.File, error) {
	return mfs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (mfs *MemFS) OpenFile(name string, flag int, perm fs.FileMode) (absfs.File, error) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	name = normalizePath(name)
	if mfs.dirs[name] {
		if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
		}
		return &memHandle{mfs: mfs, name: name, dir: true}, nil
	}

	node, exists := mfs.files[name]
	switch {
	case exists && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	case !exists && flag&os.O_CREATE == 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	case !exists:
		if !mfs.dirs[filepath.Dir(name)] {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		node = &memNode{mode: perm, modTime: time.Now()}
		mfs.files[name] = node
	}

	writable := flag&(os.O_WRONLY|os.O_RDWR) != 0
	if flag&os.O_TRUNC != 0 && writable {
		node.mu.Lock()
		node.data = nil
		node.modTime = time.Now()
		node.mu.Unlock()
	}
	h := &memHandle{
		mfs:      mfs,
		name:     name,
		node:     node,
		readable: flag&os.O_WRONLY == 0,
		writable: writable,
		append:   flag&os.O_APPEND != 0,
	}
	return h, nil
}

func (mfs *MemFS) Mkdir(name string, perm fs.FileMode) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	name = normalizePath(name)
	if mfs.dirs[name] || mfs.files[name] != nil {
		return &fs.PathError{Op: "mkdir", Path: name, Err: fs.ErrExist}
	}
	if !mfs.dirs[filepath.Dir(name)] {
		return &fs.PathError{Op: "mkdir", Path: name, Err: fs.ErrNotExist}
	}
	mfs.dirs[name] = true
	return nil
}

func (mfs *MemFS) Remove(name string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	name = normalizePath(name)
	if _, exists := mfs.files[name]; exists {
		delete(mfs.files, name)
		return nil
	}
	if mfs.dirs[name] && name != "." {
		for path := range mfs.files {
			if filepath.Dir(path) == name {
				return &fs.PathError{Op: "remove", Path: name, Err: errors.New("directory not empty")}
			}
		}
		delete(mfs.dirs, name)
		return nil
	}
	return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
}

// Rename replaces newpath if it exists
func (mfs *MemFS) Rename(oldpath, newpath string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	oldpath = normalizePath(oldpath)
	newpath = normalizePath(newpath)
	node, exists := mfs.files[oldpath]
	if !exists {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrNotExist}
	}
	if mfs.dirs[newpath] || !mfs.dirs[filepath.Dir(newpath)] {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrInvalid}
	}
	mfs.files[newpath] = node
	if newpath != oldpath {
		delete(mfs.files, oldpath)
	}
	return nil
}

func (mfs *MemFS) Stat(name string) (fs.FileInfo, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	name = normalizePath(name)
	if mfs.dirs[name] {
		return &memFileInfo{name: filepath.Base(name), mode: fs.ModeDir | 0755}, nil
	}
	node, exists := mfs.files[name]
	if !exists {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return node.info(name), nil
}

func (mfs *MemFS) ReadDir(name string) ([]fs.DirEntry, error) {
	infos, err := mfs.list(normalizePath(name))
	if err != nil {
		return nil, err
	}
	entries := make([]fs.DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, fs.FileInfoToDirEntry(info))
	}
	return entries, nil
}

// list returns the entries of dir sorted by name.
func (mfs *MemFS) list(dir string) ([]os.FileInfo, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	if !mfs.dirs[dir] {
		return nil, &fs.PathError{Op: "readdir", Path: dir, Err: fs.ErrNotExist}
	}
	var infos []os.FileInfo
	for path, node := range mfs.files {
		if filepath.Dir(path) == dir {
			infos = append(infos, node.info(path))
		}
	}
	for path := range mfs.dirs {
		if path != "." && filepath.Dir(path) == dir {
			infos = append(infos, &memFileInfo{name: filepath.Base(path), mode: fs.ModeDir | 0755})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

func (mfs *MemFS) Chmod(name string, mode os.FileMode) error {
	return mfs.update("chmod", name, func(n *memNode) { n.mode = mode })
}

func (mfs *MemFS) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return mfs.update("chtimes", name, func(n *memNode) { n.modTime = mtime })
}

// Chown only checks that name exists
func (mfs *MemFS) Chown(name string, uid, gid int) error {
	return mfs.update("chown", name, func(*memNode) {})
}

func (mfs *MemFS) update(op, name string, fn func(*memNode)) error {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	name = normalizePath(name)
	node, exists := mfs.files[name]
	if !exists {
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	node.mu.Lock()
	fn(node)
	node.mu.Unlock()
	return nil
}

func (n *memNode) info(path string) *memFileInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return &memFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(n.data)),
		mode:    n.mode,
		modTime: n.modTime,
	}
}

type memFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return fi.size }
func (fi *memFileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi *memFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *memFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *memFileInfo) Sys() interface{}   { return nil }

// memHandle is an open file or directory of a MemFS.
type memHandle struct {
	mfs  *MemFS
	name string
	node *memNode
	dir  bool

	mu       sync.Mutex
	pos      int64
	closed   bool
	readable bool
	writable bool
	append   bool
}

func (h *memHandle) check(op string, write bool) error {
	switch {
	case h.closed:
		return &fs.PathError{Op: op, Path: h.name, Err: fs.ErrClosed}
	case h.dir:
		return &fs.PathError{Op: op, Path: h.name, Err: fs.ErrInvalid}
	case write && !h.writable, !write && !h.readable:
		return &fs.PathError{Op: op, Path: h.name, Err: fs.ErrPermission}
	}
	return nil
}

func (h *memHandle) Name() string {
	return h.name
}

func (h *memHandle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, err := h.readAt(p, h.pos)
	h.pos += int64(n)
	return n, err
}

func (h *memHandle) ReadAt(b []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, err := h.readAt(b, off)
	if err == nil && n < len(b) {
		err = io.EOF
	}
	return n, err
}

func (h *memHandle) readAt(b []byte, off int64) (int, error) {
	if err := h.check("read", false); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, &fs.PathError{Op: "read", Path: h.name, Err: fs.ErrInvalid}
	}
	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	if off >= int64(len(h.node.data)) {
		return 0, io.EOF
	}
	return copy(b, h.node.data[off:]), nil
}

func (h *memHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.append {
		h.node.mu.Lock()
		h.pos = int64(len(h.node.data))
		h.node.mu.Unlock()
	}
	n, err := h.writeAt(p, h.pos)
	h.pos += int64(n)
	return n, err
}

func (h *memHandle) WriteAt(b []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writeAt(b, off)
}

func (h *memHandle) writeAt(b []byte, off int64) (int, error) {
	if err := h.check("write", true); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, &fs.PathError{Op: "write", Path: h.name, Err: fs.ErrInvalid}
	}
	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	if end := off + int64(len(b)); end > int64(len(h.node.data)) {
		h.node.data = append(h.node.data, make([]byte, end-int64(len(h.node.data)))...)
	}
	copy(h.node.data[off:], b)
	h.node.modTime = time.Now()
	return len(b), nil
}

func (h *memHandle) WriteString(s string) (int, error) {
	return h.Write([]byte(s))
}

func (h *memHandle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, &fs.PathError{Op: "seek", Path: h.name, Err: fs.ErrClosed}
	}
	if h.dir {
		return 0, &fs.PathError{Op: "seek", Path: h.name, Err: fs.ErrInvalid}
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = h.pos + offset
	case io.SeekEnd:
		h.node.mu.Lock()
		pos = int64(len(h.node.data)) + offset
		h.node.mu.Unlock()
	default:
		return 0, &fs.PathError{Op: "seek", Path: h.name, Err: fs.ErrInvalid}
	}
	if pos < 0 {
		return 0, &fs.PathError{Op: "seek", Path: h.name, Err: fs.ErrInvalid}
	}
	h.pos = pos
	return pos, nil
}

func (h *memHandle) Truncate(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check("truncate", true); err != nil {
		return err
	}
	if size < 0 {
		return &fs.PathError{Op: "truncate", Path: h.name, Err: fs.ErrInvalid}
	}
	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	if size <= int64(len(h.node.data)) {
		h.node.data = h.node.data[:size]
	} else {
		h.node.data = append(h.node.data, make([]byte, size-int64(len(h.node.data)))...)
	}
	h.node.modTime = time.Now()
	return nil
}

func (h *memHandle) Stat() (fs.FileInfo, error) {
	if h.dir {
		return &memFileInfo{name: filepath.Base(h.name), mode: fs.ModeDir | 0755}, nil
	}
	return h.node.info(h.name), nil
}

func (h *memHandle) Sync() error {
	return nil
}

func (h *memHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *memHandle) Readdir(n int) ([]os.FileInfo, error) {
	if !h.dir {
		return nil, &fs.PathError{Op: "readdir", Path: h.name, Err: fs.ErrInvalid}
	}
	infos, err := h.mfs.list(h.name)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(infos) > n {
		infos = infos[:n]
	}
	return infos, nil
}

func (h *memHandle) Readdirnames(n int) ([]string, error) {
	infos, err := h.Readdir(n)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}

func (h *memHandle) ReadDir(n int) ([]fs.DirEntry, error) {
	infos, err := h.Readdir(n)
	if err != nil {
		return nil, err
	}
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = fs.FileInfoToDirEntry(info)
	}
	return entries, nil
}
