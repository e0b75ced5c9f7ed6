// Package host implements the drivers that connect a Kernel to a real
// machine: local-disk program loading, a wall clock, and (optionally)
// an SDL2 window, audio device, and keyboard for interactive runs.
package host

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// FileSystem loads program images from the local disk, implementing
// rom.Source.
type FileSystem struct{}

func (FileSystem) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return f, nil
}

func (FileSystem) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", path)
	}
	return info.Size(), nil
}
