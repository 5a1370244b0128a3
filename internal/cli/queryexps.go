package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/dasch-science/internal/models"
)

var queryexpsPlate string

// exposureColumns is the TSV header of queryexps output.
var exposureColumns = []string{
	"series", "platenum", "scannum", "mosnum", "expnum", "solnum", "class",
	"ra", "dec", "exptime", "jd", "epoch", "wcssource", "scandate", "mosdate",
	"centerdist", "edgedist",
}

var queryexpsCmd = &cobra.Command{
	Use:   "queryexps <ra-deg> <dec-deg>",
	Short: "List the exposures covering a sky position",
	Long: `List the plate exposures whose footprint contains a sky position.

Without --plate every indexed plate is searched. Rows are written to stdout
as tab-separated values; distances are in centimeters on the plate.

Examples:
  dasch-science queryexps 10.5 20.5
  dasch-science queryexps 10.5 20.5 --plate a00001`,
	Args: cobra.ExactArgs(2),
	Run:  runQueryexps,
}

func init() {
	queryexpsCmd.Flags().StringVar(&queryexpsPlate, "plate", "", "Only search this plate")
}

func runQueryexps(_ *cobra.Command, args []string) {
	center, err := parseSky(args[0], args[1])
	if err != nil {
		exitError("%v", err)
	}

	cc := initQueryContext()
	defer cc.Close()

	ctx := context.Background()
	var matches []models.ExposureMatch
	if queryexpsPlate != "" {
		matches, err = cc.Query.QueryExposures(ctx, models.ExposureRequest{PlateID: queryexpsPlate, Center: center})
	} else {
		matches, err = cc.Query.QuerySkyExposures(ctx, models.SkyExposureRequest{Center: center})
	}
	if err != nil {
		exitError("%v", err)
	}

	if err := writeExposureTSV(os.Stdout, matches); err != nil {
		exitError("%v", err)
	}
}

// writeExposureTSV writes one row per matched exposure. Unknown values are
// empty fields.
func writeExposureTSV(w io.Writer, matches []models.ExposureMatch) error {
	if _, err := fmt.Fprintln(w, strings.Join(exposureColumns, "\t")); err != nil {
		return err
	}

	for _, m := range matches {
		ra, dec := "", ""
		if m.Center != nil {
			ra = fmt.Sprintf("%.6f", m.Center.RA)
			dec = fmt.Sprintf("%.6f", m.Center.Dec)
		}
		exptime := ""
		if m.DurationMin != nil {
			exptime = fmt.Sprintf("%.2f", *m.DurationMin)
		}

		fields := []string{
			m.Series,
			fmt.Sprint(m.PlateNumber),
			fmt.Sprint(m.ScanNumber),
			fmt.Sprint(m.MosaicNumber),
			fmt.Sprint(m.Exposure),
			fmt.Sprint(m.Solution),
			"", // plate class is not recorded
			ra,
			dec,
			exptime,
			"", // jd
			"2000",
			m.WCSSource,
			"", // scandate
			m.MosaicDate,
			fmt.Sprintf("%.1f", m.CenterDistCM),
			fmt.Sprintf("%.1f", m.EdgeDistCM),
		}
		if _, err := fmt.Fprintln(w, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}
	return nil
}
