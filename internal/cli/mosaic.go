package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/dasch-science/internal/store/imagestore"
	"github.com/kilupskalvis/dasch-science/internal/store/platestore"
)

var putMosaicCmd = &cobra.Command{
	Use:   "put-mosaic <plate-id> <file.fits>",
	Short: "Store the scanned mosaic of an indexed plate",
	Long: `Copy an uncompressed FITS mosaic into the image store under the key
recorded for the plate. The plate must already be indexed. A mosaic whose
dimensions differ from the plate record is stored with a warning, since
cutouts of it will be refused.

Examples:
  dasch-science put-mosaic a00001 a00001_00_00001.fits`,
	Args: cobra.ExactArgs(2),
	Run:  runPutMosaic,
}

func runPutMosaic(_ *cobra.Command, args []string) {
	cfg := initContext().Config
	ctx := context.Background()

	plates, err := platestore.OpenReadOnly(cfg.PlatesDBPath())
	if err != nil {
		exitError("failed to open plate store: %v", err)
	}
	defer plates.Close()

	plate, err := plates.GetPlate(ctx, args[0])
	if err != nil {
		exitError("%v", err)
	}
	if !plate.HasMosaic() {
		exitError("plate %s has no image key and dimensions on record", plate.PlateID)
	}

	images, err := imagestore.NewFSStore(cfg.ImagesPath())
	if err != nil {
		exitError("failed to open image store: %v", err)
	}

	f, err := os.Open(args[1])
	if err != nil {
		exitError("%v", err)
	}
	defer f.Close()

	if err := images.Put(ctx, plate.ImageKey, f); err != nil {
		exitError("failed to store mosaic: %v", err)
	}

	im, err := images.Open(ctx, plate.ImageKey)
	if err != nil {
		exitError("stored mosaic is unreadable: %v", err)
	}
	defer im.Close()

	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	if im.Width() != plate.Width || im.Height() != plate.Height {
		fmt.Printf("%s mosaic is %dx%d but plate %s records %dx%d; cutouts will fail\n",
			yellow("warning:"), im.Width(), im.Height(), plate.PlateID, plate.Width, plate.Height)
	}
	fmt.Printf("%s %s as %s (%dx%d, BITPIX %d)\n", green("stored"), args[1], plate.ImageKey,
		im.Width(), im.Height(), im.BitPix())
}
