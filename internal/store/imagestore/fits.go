package imagestore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/wcs"
)

// BlockSize is the FITS record block length.
const BlockSize = 2880

const cardsPerBlock = BlockSize / wcs.CardLength

// Pixels is a rectangle of raw FITS pixel data: big-endian samples of the
// given BITPIX, row 0 first.
type Pixels struct {
	Width  int
	Height int
	BitPix int
	Data   []byte
	BZero  float64
	BScale float64
}

// BytesPerPixel returns the sample size for a BITPIX value.
func BytesPerPixel(bitpix int) (int, error) {
	switch bitpix {
	case 8, 16, 32, 64, -32, -64:
		if bitpix < 0 {
			return -bitpix / 8, nil
		}
		return bitpix / 8, nil
	}
	return 0, fmt.Errorf("unsupported BITPIX %d: %w", bitpix, models.ErrCorruptSource)
}

// Value returns the physical value of sample i, applying BZERO and BSCALE.
func (p *Pixels) Value(i int) float64 {
	var raw float64
	switch p.BitPix {
	case 8:
		raw = float64(p.Data[i])
	case 16:
		raw = float64(int16(binary.BigEndian.Uint16(p.Data[2*i:])))
	case 32:
		raw = float64(int32(binary.BigEndian.Uint32(p.Data[4*i:])))
	case 64:
		raw = float64(int64(binary.BigEndian.Uint64(p.Data[8*i:])))
	case -32:
		raw = float64(math.Float32frombits(binary.BigEndian.Uint32(p.Data[4*i:])))
	case -64:
		raw = math.Float64frombits(binary.BigEndian.Uint64(p.Data[8*i:]))
	}
	scale := p.BScale
	if scale == 0 {
		scale = 1
	}
	return p.BZero + scale*raw
}

// header is the parsed primary header of a FITS file.
type header struct {
	cards      []wcs.Card
	width      int
	height     int
	bitpix     int
	bzero      float64
	bscale     float64
	dataOffset int64
}

// readHeader reads header blocks from the start of r until the END card.
func readHeader(r io.ReaderAt) (*header, error) {
	var raw []byte
	block := make([]byte, BlockSize)
	var off int64

	for done := false; !done; {
		if _, err := r.ReadAt(block, off); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("header without END card: %w", models.ErrCorruptSource)
			}
			return nil, fmt.Errorf("read header block: %v: %w", err, models.ErrStorageUnavailable)
		}
		off += BlockSize
		raw = append(raw, block...)
		for i := range cardsPerBlock {
			if strings.TrimRight(string(block[i*wcs.CardLength:i*wcs.CardLength+8]), " ") == "END" {
				done = true
				break
			}
		}
	}

	cards, err := wcs.ParseHeader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	h := &header{cards: cards, dataOffset: off, bscale: 1}
	intCard := func(key string) (int, error) {
		c, ok := wcs.Lookup(cards, key)
		if !ok {
			return 0, fmt.Errorf("missing keyword %s: %w", key, models.ErrCorruptSource)
		}
		v, err := c.Int()
		if err != nil {
			return 0, fmt.Errorf("%v: %w", err, models.ErrCorruptSource)
		}
		return int(v), nil
	}

	naxis, err := intCard("NAXIS")
	if err != nil {
		return nil, err
	}
	if naxis != 2 {
		return nil, fmt.Errorf("expected a 2-d image, got NAXIS=%d: %w", naxis, models.ErrCorruptSource)
	}
	if h.bitpix, err = intCard("BITPIX"); err != nil {
		return nil, err
	}
	if _, err := BytesPerPixel(h.bitpix); err != nil {
		return nil, err
	}
	if h.width, err = intCard("NAXIS1"); err != nil {
		return nil, err
	}
	if h.height, err = intCard("NAXIS2"); err != nil {
		return nil, err
	}
	if h.width <= 0 || h.height <= 0 {
		return nil, fmt.Errorf("empty image %dx%d: %w", h.width, h.height, models.ErrCorruptSource)
	}

	for key, dst := range map[string]*float64{"BZERO": &h.bzero, "BSCALE": &h.bscale} {
		if c, ok := wcs.Lookup(cards, key); ok {
			v, err := c.Float()
			if err != nil {
				return nil, fmt.Errorf("%v: %w", err, models.ErrCorruptSource)
			}
			*dst = v
		}
	}
	return h, nil
}

// structural keywords are written by EncodeFITS itself.
var structural = map[string]bool{
	"SIMPLE": true, "BITPIX": true, "NAXIS": true, "NAXIS1": true, "NAXIS2": true,
	"EXTEND": true, "BZERO": true, "BSCALE": true, "END": true,
}

// EncodeFITS writes pixels as a single-HDU FITS file. Structural keywords are
// generated; extra supplies the remaining header cards.
func EncodeFITS(w io.Writer, p *Pixels, extra []wcs.Card) error {
	bpp, err := BytesPerPixel(p.BitPix)
	if err != nil {
		return err
	}
	if len(p.Data) != p.Width*p.Height*bpp {
		return fmt.Errorf("pixel buffer holds %d bytes, want %d", len(p.Data), p.Width*p.Height*bpp)
	}

	cards := []wcs.Card{
		wcs.BoolCard("SIMPLE", true, "conforms to FITS standard"),
		wcs.IntCard("BITPIX", int64(p.BitPix), ""),
		wcs.IntCard("NAXIS", 2, ""),
		wcs.IntCard("NAXIS1", int64(p.Width), ""),
		wcs.IntCard("NAXIS2", int64(p.Height), ""),
	}
	if p.BScale != 0 && p.BScale != 1 {
		cards = append(cards, wcs.FloatCard("BSCALE", p.BScale, ""))
	}
	if p.BZero != 0 {
		cards = append(cards, wcs.FloatCard("BZERO", p.BZero, ""))
	}
	for _, c := range extra {
		if !structural[c.Key] {
			cards = append(cards, c)
		}
	}
	cards = append(cards, wcs.Card{Key: "END"})

	var hdr bytes.Buffer
	for _, c := range cards {
		hdr.WriteString(c.String())
	}
	if pad := hdr.Len() % BlockSize; pad != 0 {
		hdr.Write(bytes.Repeat([]byte{' '}, BlockSize-pad))
	}
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}

	if _, err := w.Write(p.Data); err != nil {
		return err
	}
	if pad := len(p.Data) % BlockSize; pad != 0 {
		if _, err := w.Write(make([]byte, BlockSize-pad)); err != nil {
			return err
		}
	}
	return nil
}
