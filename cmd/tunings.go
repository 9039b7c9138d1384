package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clhost/internal/report"
	"github.com/cwbudde/clhost/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var tuningsCmd = &cobra.Command{
	Use:   "tunings",
	Short: "Manage stored tuning records",
	Long: `Lists, shows and cleans the work-group tuning records written by
"tune --save". Records live under <data-dir>/tunings/<id>/.`,
}

var listTuningsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored tuning records",
	Args:  cobra.NoArgs,
	RunE:  runListTunings,
}

var showTuningCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a tuning record and its trials",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowTuning,
}

var cleanTuningsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old tuning records",
	Long: `Deletes tuning records by retention policy. --keep-last keeps the newest N
records per device, kernel and global size; --older-than deletes records older
than N days.`,
	Args: cobra.NoArgs,
	RunE: runCleanTunings,
}

func init() {
	rootCmd.AddCommand(tuningsCmd)
	tuningsCmd.AddCommand(listTuningsCmd, showTuningCmd, cleanTuningsCmd)

	cleanTuningsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N records per kernel launch (0 = keep all)")
	cleanTuningsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete records older than N days (0 = no age limit)")
	cleanTuningsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func openStore() (*store.FSStore, error) {
	s, err := store.NewFSStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open tuning store: %w", err)
	}
	return s, nil
}

func runListTunings(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	infos, err := s.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list tuning records: %w", err)
	}
	return report.Records(cmd.OutOrStdout(), infos)
}

// resolveID expands a unique ID prefix as printed by "tunings list".
func resolveID(s *store.FSStore, prefix string) (string, error) {
	infos, err := s.ListRecords()
	if err != nil {
		return "", err
	}
	var match []string
	for _, info := range infos {
		if info.ID == prefix {
			return prefix, nil
		}
		if strings.HasPrefix(info.ID, prefix) {
			match = append(match, info.ID)
		}
	}
	switch len(match) {
	case 0:
		return "", &store.NotFoundError{ID: prefix}
	case 1:
		return match[0], nil
	default:
		return "", fmt.Errorf("id prefix %q is ambiguous (%d records)", prefix, len(match))
	}
}

func runShowTuning(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	id, err := resolveID(s, args[0])
	if err != nil {
		return err
	}
	rec, err := s.LoadRecord(id)
	if err != nil {
		return err
	}

	var trace []store.TraceEntry
	tr, err := store.NewTraceReader(s.BaseDir(), id)
	if err == nil {
		trace, err = tr.ReadAll()
		tr.Close()
	}
	if err != nil {
		slog.Warn("Trace unavailable", "id", id, "error", err)
	}
	return report.Record(cmd.OutOrStdout(), rec, trace)
}

func runCleanTunings(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	infos, err := s.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list tuning records: %w", err)
	}

	out := cmd.OutOrStdout()
	toDelete := selectRecordsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No tuning records match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d record(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s %v, %s)\n", info.ID, info.Kernel, info.Global, info.Timestamp.Format("2006-01-02 15:04:05"))
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := s.DeleteRecord(info.ID); err != nil {
			slog.Error("Failed to delete tuning record", "id", info.ID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted tuning record", "id", info.ID)
		deleted++
	}
	fmt.Fprintf(out, "\nDeleted %d record(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRecordsForDeletion applies the retention policy. infos must be
// sorted newest first, as ListRecords returns them.
func selectRecordsForDeletion(infos []store.RecordInfo, keepLast, olderThanDays int, now time.Time) []store.RecordInfo {
	var toDelete []store.RecordInfo
	cutoff := now.AddDate(0, 0, -olderThanDays)
	kept := make(map[string]int)
	for _, info := range infos {
		key := fmt.Sprintf("%s/%s/%v", info.Device, info.Kernel, info.Global)
		kept[key]++
		switch {
		case olderThanDays > 0 && info.Timestamp.Before(cutoff):
			toDelete = append(toDelete, info)
		case keepLast > 0 && kept[key] > keepLast:
			toDelete = append(toDelete, info)
		}
	}
	slices.SortFunc(toDelete, func(a, b store.RecordInfo) int { return a.Timestamp.Compare(b.Timestamp) })
	return toDelete
}
