package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/store/imagestore"
	"github.com/kilupskalvis/dasch-science/internal/wcs"
)

// RegionReader reads a pixel rectangle from a stored mosaic.
type RegionReader interface {
	ReadRegion(ctx context.Context, r models.PixelRegion) (*imagestore.Pixels, error)
}

// Provenance identifies the source of a cutout in its header.
type Provenance struct {
	PlateID  string
	Exposure int
	Solution int
}

// Assemble reads plan.Region from src and encodes it as a standalone image
// whose mapping is re-anchored so that its pixel (0,0) is the source pixel
// (x0,y0).
func Assemble(ctx context.Context, src RegionReader, m wcs.Mapping, plan RegionPlan, format string, prov Provenance) (*models.CutoutResult, error) {
	anchored, ok := m.(wcs.Anchored)
	if !ok {
		return nil, fmt.Errorf("mapping of plate %s cannot be written as a header: %w", prov.PlateID, models.ErrCorruptSource)
	}
	r := plan.Region
	moved := anchored.Translate(float64(r.X0), float64(r.Y0))

	px, err := src.ReadRegion(ctx, r)
	if err != nil {
		return nil, storageError(err)
	}

	cards := moved.Cards()
	cards = append(cards,
		wcs.StringCard("DASCHPLT", prov.PlateID, "source plate"),
		wcs.IntCard("DASCHEXP", int64(prov.Exposure), "source exposure number"),
		wcs.IntCard("DASCHSOL", int64(prov.Solution), "source solution number"),
		wcs.FloatCard("LTV1", -float64(r.X0), "source to cutout offset"),
		wcs.FloatCard("LTV2", -float64(r.Y0), "source to cutout offset"),
		wcs.BoolCard("CLAMPED", plan.Clamped, "region clipped at the plate edge"),
	)

	var buf bytes.Buffer
	var contentType string
	switch format {
	case models.FormatPNG:
		contentType = "image/png"
		err = imagestore.EncodePNG(&buf, px)
	default:
		contentType = "application/fits"
		err = imagestore.EncodeFITS(&buf, px, cards)
	}
	if err != nil {
		return nil, fmt.Errorf("encode cutout: %w", err)
	}

	header := make([]string, len(cards))
	for i, c := range cards {
		header[i] = c.String()
	}

	return &models.CutoutResult{
		PlateID:     prov.PlateID,
		Exposure:    prov.Exposure,
		Solution:    prov.Solution,
		Payload:     buf.Bytes(),
		ContentType: contentType,
		Header:      header,
		Region:      r,
		Requested:   plan.Requested,
		Clamped:     plan.Clamped,
	}, nil
}

// storageError classifies a store failure. Context errors and kinds the
// stores already assigned pass through; anything else is an unavailable
// store.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if models.Kind(err) != "internal_error" {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
}
