package image

import (
	"fmt"
	"os"

	"github.com/lima-vm/go-qcow2reader"
	"github.com/lima-vm/go-qcow2reader/image"
)

// Info is what a successful header inspection tells the caller about
// a cloned disk image, enough to decide whether it is safe to define
// a domain against it.
type Info struct {
	Path        string
	VirtualSize int64
}

// Inspect opens path and reads its qcow2 header, returning an error if
// the file is not a valid, readable qcow2 image. It is meant to run
// immediately after an image clone and before CreateXML, catching a
// truncated or still-in-progress copy before a domain is defined
// against it.
func Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()

	img, err := qcow2reader.Open(f)
	if err != nil {
		return Info{}, fmt.Errorf("read qcow2 header %s: %w", path, err)
	}
	defer img.Close()

	if img.Type() != image.Qcow2 {
		return Info{}, fmt.Errorf("image %s: expected qcow2, got %s", path, img.Type())
	}

	return Info{Path: path, VirtualSize: img.Size()}, nil
}
