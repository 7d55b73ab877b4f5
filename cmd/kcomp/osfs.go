package main

import (
	"io/fs"
	"os"

	"github.com/absfs/absfs"
)

// osFS exposes the host filesystem to the engine's file operations.
type osFS struct{}

func (osFS) OpenFile(name string, flag int, perm fs.FileMode) (absfs.File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (osFS) Remove(name string) error { return os.Remove(name) }

func (osFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (osFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
