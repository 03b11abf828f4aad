// Package fs is the filesystem seam of the daemon, so controllers can be tested against fsmock.
package fs

import (
	"os"

	"go.uber.org/fx"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// DlspFS wraps the filesystem operations used by dlsp.
type DlspFS interface {
	MkdirAll(path string) error
	// FileExists reports whether path is a regular file. A missing path is not an error.
	FileExists(path string) (bool, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data string) error
	TempFile(dir, pattern string) (*os.File, error)
	Remove(name string) error
	UserCacheDir() (string, error)
}

type osFS struct{}

// New returns a DlspFS backed by the os package.
func New() DlspFS {
	return osFS{}
}

// MkdirAll creates a directory and all its parents.
func (osFS) MkdirAll(path string) error { return os.MkdirAll(path, os.ModePerm) }

func (osFS) FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return false, nil
	case err != nil:
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (osFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (osFS) WriteFile(name string, data string) error {
	return os.WriteFile(name, []byte(data), 0o644)
}

func (osFS) TempFile(dir, pattern string) (*os.File, error) { return os.CreateTemp(dir, pattern) }

func (osFS) Remove(name string) error { return os.Remove(name) }

func (osFS) UserCacheDir() (string, error) { return os.UserCacheDir() }
