// Package imagestore serves plate mosaics stored as uncompressed FITS files and
// encodes cutouts. Reads touch only the rows of the requested region.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/wcs"
)

// validKey matches relative slash-separated keys such as "a/a00123_01.fits".
var validKey = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*(/[A-Za-z0-9_][A-Za-z0-9_.\-]*)*$`)

// ImageStore is a read-mostly store of plate mosaics.
type ImageStore interface {
	// Open returns a handle on the mosaic stored under key. Returns
	// models.ErrNotFound if there is none.
	Open(ctx context.Context, key string) (*Image, error)

	// Put stores a mosaic, replacing any previous one.
	Put(ctx context.Context, key string, r io.Reader) error
}

// FSStore implements ImageStore on the local filesystem.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-backed image store rooted at the given directory.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create image root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func checkKey(key string) error {
	if !validKey.MatchString(key) || strings.Contains(key, "..") {
		return fmt.Errorf("invalid image key %q: %w", key, models.ErrInvalidRequest)
	}
	return nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Has checks whether a mosaic exists.
func (s *FSStore) Has(_ context.Context, key string) (bool, error) {
	if checkKey(key) != nil {
		return false, nil
	}
	_, err := os.Stat(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat image %s: %w", key, err)
	}
	return true, nil
}

// Open opens a mosaic and parses its primary header.
func (s *FSStore) Open(ctx context.Context, key string) (*Image, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("image %s: %w", key, models.ErrNotFound)
		}
		return nil, fmt.Errorf("open image %s: %v: %w", key, err, models.ErrStorageUnavailable)
	}

	h, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("image %s: %w", key, err)
	}
	return &Image{Key: key, f: f, h: h}, nil
}

// Put writes the mosaic to a temp file and renames it into place.
func (s *FSStore) Put(_ context.Context, key string, r io.Reader) error {
	if err := checkKey(key); err != nil {
		return err
	}
	dst := s.path(key)

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".image-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write image data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename image: %w", err)
	}
	return nil
}

// Image is an open mosaic. It is safe for concurrent reads.
type Image struct {
	Key string
	f   *os.File
	h   *header
}

func (im *Image) Width() int  { return im.h.width }
func (im *Image) Height() int { return im.h.height }
func (im *Image) BitPix() int { return im.h.bitpix }

// Cards returns the mosaic's primary header cards.
func (im *Image) Cards() []wcs.Card { return im.h.cards }

// Close releases the file handle.
func (im *Image) Close() error { return im.f.Close() }

// ReadRegion reads the pixels of r, one ranged read per row. The region must
// lie within the image.
func (im *Image) ReadRegion(ctx context.Context, r models.PixelRegion) (*Pixels, error) {
	if r.Empty() || r.X0 < 0 || r.Y0 < 0 || r.X1 > im.h.width || r.Y1 > im.h.height {
		return nil, fmt.Errorf("region %v outside %dx%d image: %w", r, im.h.width, im.h.height, models.ErrRegionEmpty)
	}
	bpp, err := BytesPerPixel(im.h.bitpix)
	if err != nil {
		return nil, err
	}

	rowBytes := r.Width() * bpp
	out := &Pixels{
		Width:  r.Width(),
		Height: r.Height(),
		BitPix: im.h.bitpix,
		Data:   make([]byte, rowBytes*r.Height()),
		BZero:  im.h.bzero,
		BScale: im.h.bscale,
	}

	stride := int64(im.h.width * bpp)
	for row := range r.Height() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		off := im.h.dataOffset + int64(r.Y0+row)*stride + int64(r.X0*bpp)
		if _, err := im.f.ReadAt(out.Data[row*rowBytes:(row+1)*rowBytes], off); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("image %s truncated at row %d: %w", im.Key, r.Y0+row, models.ErrCorruptSource)
			}
			return nil, fmt.Errorf("read image %s row %d: %v: %w", im.Key, r.Y0+row, err, models.ErrStorageUnavailable)
		}
	}
	return out, nil
}
