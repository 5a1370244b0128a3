package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/dasch-science/internal/models"
)

var (
	cutoutArcsec   float64
	cutoutPixels   int
	cutoutExposure int
	cutoutFormat   string
	cutoutOutput   string
)

var cutoutCmd = &cobra.Command{
	Use:   "cutout <plate-id> <ra-deg> <dec-deg>",
	Short: "Extract a cutout of a plate around a sky position",
	Long: `Extract a square cutout of a scanned plate centered on a sky position.

The half-size is given either in arcseconds or in pixels. The exposure is
resolved from the position unless --exposure pins it. The output header
carries the astrometric solution re-anchored to the cutout.

Examples:
  dasch-science cutout a00001 10.5 20.5 --pixels 200
  dasch-science cutout a00001 10.5 20.5 --arcsec 600 --format png -o a00001.png
  dasch-science cutout mc00010 10.5 20.5 --pixels 100 --exposure 2`,
	Args: cobra.ExactArgs(3),
	Run:  runCutout,
}

func init() {
	f := cutoutCmd.Flags()
	f.Float64Var(&cutoutArcsec, "arcsec", 0, "Half-size of the cutout in arcseconds")
	f.IntVar(&cutoutPixels, "pixels", 0, "Half-size of the cutout in pixels")
	f.IntVar(&cutoutExposure, "exposure", -1, "Exposure number (default: resolved from the position)")
	f.StringVar(&cutoutFormat, "format", models.FormatFITS, "Output format (fits|png)")
	f.StringVarP(&cutoutOutput, "output", "o", "", "Output file (default: <plate-id>.<format>)")
	cutoutCmd.MarkFlagsMutuallyExclusive("arcsec", "pixels")
	cutoutCmd.MarkFlagsOneRequired("arcsec", "pixels")
}

func runCutout(cmd *cobra.Command, args []string) {
	center, err := parseSky(args[1], args[2])
	if err != nil {
		exitError("%v", err)
	}

	req := models.CutoutRequest{
		PlateID:        args[0],
		Center:         center,
		HalfSizeArcsec: cutoutArcsec,
		HalfSizePixels: cutoutPixels,
		Format:         cutoutFormat,
	}
	if cmd.Flags().Changed("exposure") {
		req.Exposure = &cutoutExposure
	}

	cc := initQueryContext()
	defer cc.Close()

	res, err := cc.Query.Cutout(context.Background(), req)
	if err != nil {
		exitError("%v", err)
	}

	path := cutoutOutput
	if path == "" {
		path = res.PlateID + "." + cutoutExtension(req.Format)
	}
	if err := os.WriteFile(path, res.Payload, 0644); err != nil {
		exitError("failed to write %s: %v", path, err)
	}

	printCutoutSummary(res, path)
}

func cutoutExtension(format string) string {
	if format == models.FormatPNG {
		return "png"
	}
	return "fits"
}

func printCutoutSummary(res *models.CutoutResult, path string) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Printf("%s %s exposure %d (solution %d)\n", green("wrote"), path, res.Exposure, res.Solution)
	fmt.Printf("  region: %s (%dx%d)\n", res.Region, res.Region.Width(), res.Region.Height())
	if res.Clamped {
		fmt.Printf("  %s requested region %s was clamped to the image\n", yellow("warning:"), res.Requested)
	}
	if res.Ambiguous {
		fmt.Printf("  %s several exposures cover this position; pass --exposure to choose\n", yellow("warning:"))
	}
}
