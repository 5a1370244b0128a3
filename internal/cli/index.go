package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/dasch-science/internal/core"
	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/store/platestore"
)

var indexPlatesCmd = &cobra.Command{
	Use:   "index-plates [file.jsonl]",
	Short: "Load plate records and build the sky coverage index",
	Long: `Load plate records, one JSON object per line, into the plate store and
record the sky cells covered by each exposure.

Reads stdin when no file is given. Re-indexing a plate replaces its record
and its coverage entries.

Examples:
  dasch-science index-plates plates.jsonl
  zcat plates.jsonl.gz | dasch-science index-plates`,
	Args: cobra.MaximumNArgs(1),
	Run:  runIndexPlates,
}

func runIndexPlates(_ *cobra.Command, args []string) {
	cfg := initContext().Config

	in := io.Reader(os.Stdin)
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			exitError("%v", err)
		}
		defer f.Close()
		in = f
	}

	plates, err := platestore.NewBboltStore(cfg.PlatesDBPath())
	if err != nil {
		exitError("failed to open plate store: %v", err)
	}
	defer plates.Close()

	n, err := indexPlates(context.Background(), plates, in, cfg.NewLogger(os.Stderr))
	if err != nil {
		exitError("%v", err)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s %d plates\n", green("indexed"), n)
}

// indexPlates reads JSON Lines plate records from r and indexes each one.
// Blank lines are skipped. It stops at the first malformed record.
func indexPlates(ctx context.Context, w core.PlateWriter, r io.Reader, logger *slog.Logger) (int, error) {
	b := core.NewCoverageBinning()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	n, line := 0, 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var plate models.Plate
		if err := json.Unmarshal(data, &plate); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if plate.PlateID == "" {
			return n, fmt.Errorf("line %d: missing plate_id", line)
		}
		if err := core.IndexPlate(ctx, w, &plate, b, logger); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("read plates: %w", err)
	}
	return n, nil
}
