// Package main provides the purchase log command line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kimhsiao/purchaselog/backend/internal/config"
	"github.com/kimhsiao/purchaselog/backend/internal/export"
	"github.com/kimhsiao/purchaselog/backend/internal/logging"
	"github.com/kimhsiao/purchaselog/backend/internal/services"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, app *services.App, args []string, out io.Writer) error
}

var commands = []command{
	{"add", "Record a purchase", runAdd},
	{"list", "List recorded purchases", runList},
	{"delete", "Delete one purchase", runDelete},
	{"import-photo", "Copy a photo into the photos directory", runImportPhoto},
	{"export", "Build the export archive", runExport},
	{"history", "List finished exports", runHistory},
	{"clear-cache", "Remove export working files and archives", runClearCache},
	{"wipe", "Delete every purchase and app photo", runWipe},
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return fmt.Errorf("no command given")
	}

	switch args[0] {
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	case "version":
		fmt.Fprintf(out, "purchaselog v%s\n", Version)
		return nil
	}

	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		cfgPath, rest := splitConfigFlag(args[1:])
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		logging.Init(os.Stderr, logging.ParseLevel(cfg.LogLevel))

		app, err := services.NewApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		return c.run(ctx, app, rest, out)
	}

	printUsage(out)
	return fmt.Errorf("unknown command: %s", args[0])
}

// splitConfigFlag removes a leading -config flag shared by every command.
func splitConfigFlag(args []string) (string, []string) {
	path := os.Getenv("PURCHASELOG_CONFIG")
	var rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				path = args[i+1]
				i++
			}
		case strings.HasPrefix(a, "-config=") || strings.HasPrefix(a, "--config="):
			path = a[strings.Index(a, "=")+1:]
		default:
			rest = append(rest, a)
		}
	}
	return path, rest
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Purchase log")
	fmt.Fprintln(out, "\nUsage:")
	fmt.Fprintln(out, "  purchaselog <command> [-config file] [options]")
	fmt.Fprintln(out, "\nCommands:")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-13s %s\n", c.name, c.usage)
	}
	fmt.Fprintln(out, "  version       Show the version")
	fmt.Fprintln(out, "\nRun 'purchaselog <command> -h' for more information on a command.")
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runAdd(ctx context.Context, app *services.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	desc := fs.String("desc", "", "Description (required)")
	price := fs.String("price", "", "Price, e.g. 12.34 (required)")
	qty := fs.Int("qty", 1, "Quantity")
	date := fs.String("date", "", "Purchase date, yyyy-mm-dd or mm/dd/yyyy (default today)")
	notes := fs.String("notes", "", "Notes")
	group := fs.String("group", "", "Group label")
	var photos stringList
	fs.Var(&photos, "photo", "Photo file to attach (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cents, err := services.ParseAmount(*price)
	if err != nil {
		return err
	}
	in := services.NewPurchase{
		Description: *desc,
		PriceCents:  cents,
		Quantity:    *qty,
		Notes:       *notes,
		Group:       *group,
		Photos:      photos,
	}
	if *date != "" {
		if in.PurchaseDate, err = services.ParseDate(*date); err != nil {
			return err
		}
	}

	p, err := app.Purchases.Add(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Added %s (%s, %d photo(s))\n", p.ID, export.FormatPrice(p.PriceCents), len(p.PhotoRefs))
	return nil
}

func runList(ctx context.Context, app *services.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	purchases, err := app.Purchases.List(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(purchases)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tPRICE\tQTY\tGROUP\tPHOTOS\tDESCRIPTION")
	for _, p := range purchases {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			p.ID, export.FormatDate(p.PurchaseDate), export.FormatPrice(p.PriceCents),
			p.Quantity, p.GroupName, len(p.PhotoRefs), p.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s purchase(s)\n", humanize.Comma(int64(len(purchases))))
	return nil
}

func runDelete(ctx context.Context, app *services.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	id := fs.String("id", "", "Purchase id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("-id is required")
	}
	if err := app.Purchases.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %s\n", *id)
	return nil
}

func runImportPhoto(ctx context.Context, app *services.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import-photo", flag.ContinueOnError)
	src := fs.String("src", "", "Photo file or file:// URI (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *src == "" {
		return fmt.Errorf("-src is required")
	}
	ref, err := app.Importer.Import(*src)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, ref)
	return nil
}

func runExport(ctx context.Context, app *services.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := app.Export.Export(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported %d purchase(s), %d photo(s) to %s (%s)\n",
		result.RecordCount, result.PhotoCount, result.ArchivePath, humanize.Bytes(uint64(result.SizeBytes)))
	if result.DroppedPhotos > 0 {
		fmt.Fprintf(out, "Warning: %d photo(s) could not be read and were left out\n", result.DroppedPhotos)
	}
	if !result.LocationAvailable {
		fmt.Fprintln(out, "Location: unavailable")
	}
	fmt.Fprintf(out, "Share: %s\n", result.Handle)
	return nil
}

func runHistory(ctx context.Context, app *services.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 10, "Number of exports to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	archives, err := app.Export.History(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tSIZE\tRECORDS\tPHOTOS\tDROPPED\tFILE")
	for _, a := range archives {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			humanize.Time(a.CreatedAtTime()), humanize.Bytes(uint64(a.SizeBytes)),
			a.RecordCount, a.PhotoCount, a.DroppedPhotos, a.FilePath)
	}
	return tw.Flush()
}

func runClearCache(ctx context.Context, app *services.App, args []string, out io.Writer) error {
	result, err := app.Export.ClearCache()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Removed %d item(s), freed %s\n", result.EntriesRemoved, humanize.Bytes(uint64(result.BytesFreed)))
	return nil
}

func runWipe(ctx context.Context, app *services.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("wipe", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "Confirm deleting everything")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("wipe deletes every purchase and photo; rerun with -yes to confirm")
	}

	result, err := app.Export.WipeAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %d purchase(s) and %d photo(s)", result.RecordsDeleted, result.PhotosDeleted)
	if result.PhotosFailed > 0 {
		fmt.Fprintf(out, ", %d photo(s) could not be deleted", result.PhotosFailed)
	}
	fmt.Fprintln(out)
	return nil
}
