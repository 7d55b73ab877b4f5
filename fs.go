package kcomp

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileSystem is the part of absfs.Filer the file operations need. Any
// absfs.Filer satisfies it.
type FileSystem interface {
	OpenFile(name string, flag int, perm fs.FileMode) (absfs.File, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
	Stat(name string) (fs.FileInfo, error)
}

// CompressFile compresses the file src into the container dst. The output
// is written to a temporary file next to dst and renamed into place only
// on success, so a failed run leaves no partial dst behind.
func (e *Engine) CompressFile(ctx context.Context, fsys FileSystem, src, dst string) error {
	return e.transformFile(ctx, fsys, src, dst, e.Compress)
}

// DecompressFile decompresses the container src into dst. Like
// CompressFile, dst only appears once every block has been verified.
func (e *Engine) DecompressFile(ctx context.Context, fsys FileSystem, src, dst string) error {
	return e.transformFile(ctx, fsys, src, dst, e.Decompress)
}

func (e *Engine) transformFile(ctx context.Context, fsys FileSystem, src, dst string,
	transform func(context.Context, io.Writer, io.Reader) error,
) error {
	in, err := fsys.OpenFile(src, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer in.Close()

	perm := fs.FileMode(0o644)
	if info, err := in.Stat(); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := temporaryName(dst)
	if err != nil {
		return err
	}
	out, err := fsys.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	err = transform(ctx, out, in)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = fsys.Rename(tmp, dst)
	}
	if err != nil {
		if removeErr := fsys.Remove(tmp); removeErr != nil {
			e.logger.Warn("cannot remove temporary file", zap.String("path", tmp), zap.Error(removeErr))
		}
		return err
	}
	return nil
}

// temporaryName returns a unique hidden name in the directory of path.
func temporaryName(path string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	dir, base := filepath.Split(path)
	return filepath.Join(dir, "."+base+"."+id.String()+".tmp"), nil
}
