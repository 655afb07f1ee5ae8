package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-merge/filter"
	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/mbox"
	"github.com/dhcgn/mail-merge/rfc822"
)

var (
	reportDir     string
	topN          int
	outboxSubject string
	outboxTo      string
)

var outboxCmd = &cobra.Command{
	Use:   "outbox [mbox file]",
	Short: "Summarize the messages a dry run wrote to the local outbox",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := outboxPath(cmd, args)
		if err != nil {
			return err
		}

		q := gateway.Query{Subject: outboxSubject}
		if outboxTo != "" {
			q.Predicates = append(q.Predicates, gateway.Recipient(outboxTo))
		}
		f, err := filter.New(q)
		if err != nil {
			return fmt.Errorf("create filter: %w", err)
		}

		report, err := summarizeOutbox(cmd.Context(), path, f)
		if err != nil {
			return fmt.Errorf("error reading mbox file: %w", err)
		}

		pterm.DefaultSection.Println("Outbox " + path)
		pterm.Info.Printf("Messages: %d (matched %d)\n", report.Total, report.Matched)
		for _, field := range outboxFields {
			printTop(field, report.Counts[field], topN)
		}

		if reportDir != "" {
			if err := saveCSVReports(report.Counts, outboxFields, reportDir, 1000); err != nil {
				return fmt.Errorf("error saving CSV reports: %w", err)
			}
			pterm.Info.Printf("Reports saved to directory: %s\n", reportDir)
		}
		return nil
	},
}

func init() {
	outboxCmd.Flags().StringVarP(&reportDir, "output", "o", "", "Output directory for CSV reports")
	outboxCmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display")
	outboxCmd.Flags().StringVar(&outboxSubject, "subject", "", "Only count messages whose subject contains this text")
	outboxCmd.Flags().StringVar(&outboxTo, "to", "", "Only count messages addressed to this recipient")
	rootCmd.AddCommand(outboxCmd)
}

// outboxPath takes the argument, else --mbox-outbox, else the default
// outbox in the state directory.
func outboxPath(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if p, _ := cmd.Flags().GetString("mbox-outbox"); p != "" {
		return p, nil
	}
	dir, err := cmd.Flags().GetString("state-dir")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "outbox.mbox"), nil
}

var outboxFields = []string{"To", "Cc", "Subject"}

type outboxReport struct {
	Total   int
	Matched int
	Counts  map[string]map[string]int
}

func summarizeOutbox(ctx context.Context, path string, f *filter.Filter) (outboxReport, error) {
	report := outboxReport{Counts: make(map[string]map[string]int)}
	for _, field := range outboxFields {
		report.Counts[field] = make(map[string]int)
	}

	err := mbox.Read(ctx, path, func(idx int, raw []byte) error {
		report.Total++
		env, err := rfc822.ParseEnvelope(filter.HeaderSection(raw))
		if err != nil {
			return nil
		}
		if !f.Allows(env) {
			return nil
		}
		report.Matched++
		for _, addr := range env.To {
			report.Counts["To"][strings.ToLower(addr)]++
		}
		for _, addr := range env.Cc {
			report.Counts["Cc"][strings.ToLower(addr)]++
		}
		if env.Subject != "" {
			report.Counts["Subject"][env.Subject]++
		}
		return nil
	})
	return report, err
}

type pair struct {
	Key   string
	Value int
}

// sortedCounts orders by count descending, then by key.
func sortedCounts(counts map[string]int) []pair {
	pairs := make([]pair, 0, len(counts))
	for k, v := range counts {
		pairs = append(pairs, pair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})
	return pairs
}

func printTop(field string, counts map[string]int, n int) {
	pairs := sortedCounts(counts)
	if len(pairs) == 0 {
		return
	}
	data := pterm.TableData{{field, "Count"}}
	for i := 0; i < n && i < len(pairs); i++ {
		data = append(data, []string{pairs[i].Key, strconv.Itoa(pairs[i].Value)})
	}
	pterm.Printf("Top %d %s:\n", n, field)
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func saveCSVReports(counter map[string]map[string]int, fields []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, field := range fields {
		filePath := filepath.Join(dir, fmt.Sprintf("outbox_%s.csv", normalizeHeaderName(field)))
		file, err := os.Create(filePath)
		if err != nil {
			return err
		}

		writer := csv.NewWriter(file)
		if err := writer.Write([]string{"Value", "Count"}); err != nil {
			file.Close()
			return err
		}

		pairs := sortedCounts(counter[field])
		for i := 0; i < limit && i < len(pairs); i++ {
			if err := writer.Write([]string{pairs[i].Key, strconv.Itoa(pairs[i].Value)}); err != nil {
				file.Close()
				return err
			}
		}

		writer.Flush()
		file.Close()

		if err := writer.Error(); err != nil {
			return err
		}
	}

	return nil
}

func normalizeHeaderName(header string) string {
	name := strings.ToLower(header)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
