// Command fusereport summarises fusions recorded by the simulator's SQLite
// index and compressed journal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/milk9111/blockfuse/journal"
)

func main() {
	indexPath := flag.String("index", "", "path of the SQLite fusion index")
	journalDir := flag.String("journal", "", "directory holding fusions-*.jsonl.zst files")
	run := flag.String("run", "", "limit the index summary to one run")
	tail := flag.Int("tail", 10, "journal records to print from the end")
	flag.Parse()

	if *indexPath == "" && *journalDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	if *indexPath != "" {
		if err := reportIndex(ctx, *indexPath, *run); err != nil {
			log.Fatal(err)
		}
	}
	if *journalDir != "" {
		if err := reportJournal(*journalDir, *tail); err != nil {
			log.Fatal(err)
		}
	}
}

func reportIndex(ctx context.Context, path, run string) error {
	report, err := journal.OpenReport(path)
	if err != nil {
		return err
	}
	defer report.Close()

	runs := []string{run}
	if run == "" {
		if runs, err = report.Runs(ctx); err != nil {
			return err
		}
		runs = append(runs, "")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tFUSIONS\tX\tY\tZ\tMAX VOLUME\tFIRST\tLAST")
	for _, r := range runs {
		sum, err := report.Summary(ctx, r)
		if err != nil {
			return err
		}
		name := r
		if name == "" {
			name = "(all)"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%g\t%s\t%s\n",
			name, sum.Fusions, sum.ByAxis["x"], sum.ByAxis["y"], sum.ByAxis["z"], sum.MaxVolume, sum.First, sum.Last)
	}
	return tw.Flush()
}

func reportJournal(dir string, tail int) error {
	files, err := journal.Files(dir)
	if err != nil {
		return err
	}

	var recs []journal.Record
	for _, f := range files {
		got, err := journal.ReadJSONL(f)
		if err != nil {
			return err
		}
		recs = append(recs, got...)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].RecordedAt.Before(recs[j].RecordedAt) })

	fmt.Printf("%d journal records in %d files\n", len(recs), len(files))
	if tail > 0 && len(recs) > tail {
		recs = recs[len(recs)-tail:]
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tAXIS\tSELF\tOTHER\tRESULT\tSIZE\tMATERIAL")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%v\t%s\n",
			r.Seq, r.RecordedAt.Format("15:04:05.000"), r.Axis, r.Self, r.Other, r.Result, r.Output.Size, r.Material)
	}
	return tw.Flush()
}
