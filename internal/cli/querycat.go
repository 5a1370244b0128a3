package cli

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/refcat"
	"github.com/kilupskalvis/dasch-science/internal/store/catalog"
)

var (
	querycatRefCat string
	querycatLimit  int
)

// catalogColumns is the CSV header of querycat output. The columns after
// posEpoch are copied from the source attributes named in attributeColumns.
var catalogColumns = []string{
	"ref_text",
	"ref_number",
	"gscBinIndex",
	"raDeg",
	"decDeg",
	"draAsec",
	"ddecAsec",
	"posEpoch",
	"pmRaMasyr",
	"pmDecMasyr",
	"uPMRaMasyr",
	"uPMDecMasyr",
	"stdmag",
	"color",
	"vFlag",
	"magFlag",
	"class",
}

var attributeColumns = []string{
	"raPM",
	"decPM",
	"raSigmaPM",
	"decSigmaPM",
	"stdmag",
	"color",
	"vFlag",
	"magFlag",
	"class",
}

var querycatCmd = &cobra.Command{
	Use:   "querycat <ra-deg> <dec-deg> <radius-arcsec>",
	Short: "Search a reference catalog around a sky position",
	Long: `Search a reference catalog for sources within a radius of a sky position.

Matches are written to stdout as CSV, nearest first.

Examples:
  dasch-science querycat 10.5 20.5 30
  dasch-science querycat 10.5 20.5 120 --refcat atlas --limit 50`,
	Args: cobra.ExactArgs(3),
	Run:  runQuerycat,
}

func init() {
	f := querycatCmd.Flags()
	f.StringVar(&querycatRefCat, "refcat", catalog.DefaultRefCat, "Reference catalog (apass|atlas)")
	f.IntVar(&querycatLimit, "limit", 0, "Maximum number of matches (0 for all)")
}

func runQuerycat(_ *cobra.Command, args []string) {
	center, err := parseSky(args[0], args[1])
	if err != nil {
		exitError("%v", err)
	}
	radius, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		exitError("invalid radius %q", args[2])
	}

	cc := initQueryContext()
	defer cc.Close()

	matches, err := cc.Query.QueryCatalog(context.Background(), models.CatalogRequest{
		Center:       center,
		RadiusArcsec: radius,
		Limit:        querycatLimit,
		RefCat:       querycatRefCat,
	})
	if err != nil {
		exitError("%v", err)
	}

	if err := writeCatalogCSV(os.Stdout, matches); err != nil {
		exitError("%v", err)
	}
}

// writeCatalogCSV writes matches in the querycat column layout.
func writeCatalogCSV(w io.Writer, matches []models.CatalogMatch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(catalogColumns); err != nil {
		return err
	}

	row := make([]string, len(catalogColumns))
	for _, m := range matches {
		src := m.Source
		refText := "UNDEFINED"
		if src.RefNumber != 0 {
			refText = refcat.Text(src.RefNumber)
		}

		row = row[:0]
		row = append(row,
			refText,
			strconv.FormatUint(src.RefNumber, 10),
			strconv.FormatUint(src.Cell, 10),
			strconv.FormatFloat(src.Position.RA, 'f', -1, 64),
			strconv.FormatFloat(src.Position.Dec, 'f', -1, 64),
			strconv.FormatFloat(m.DRAArcsec, 'f', -1, 64),
			strconv.FormatFloat(m.DDecArcsec, 'f', -1, 64),
			"2000.000",
		)
		for _, name := range attributeColumns {
			row = append(row, src.Attributes[name])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
