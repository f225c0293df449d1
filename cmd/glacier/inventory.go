package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/newthinker/glacier/internal/core"
	"github.com/newthinker/glacier/internal/sink"
	"github.com/spf13/cobra"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory <vault>",
	Short: "Retrieve the vault inventory",
	Long: `Start an inventory retrieval job, wait for it and write the JSON
inventory to --output or glacier-<vault>-inventory.json, then print a
summary. Glacier refreshes inventories about once a day, so recent uploads
may be missing.`,
	Args: cobra.ExactArgs(1),
	RunE: runInventory,
}

func init() {
	inventoryCmd.Flags().StringVarP(&output, "output", "o", "", "destination path or s3://bucket/key")
	rootCmd.AddCommand(inventoryCmd)
}

func runInventory(cmd *cobra.Command, args []string) error {
	var rest []string
	if output != "" {
		rest = []string{output}
	}
	report, err := execute(cmd, args[0], rest)
	if err != nil {
		return err
	}

	location := report.Items[0].Result.Location
	if sink.IsS3(location) {
		return nil
	}
	return printInventory(cmd.OutOrStdout(), location)
}

func printInventory(w io.Writer, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading inventory: %w", err)
	}
	var inv core.Inventory
	if err := json.Unmarshal(raw, &inv); err != nil {
		return fmt.Errorf("parsing inventory: %w", err)
	}

	fmt.Fprintf(w, "\nInventory of %s as of %s\n\n", inv.VaultARN, inv.InventoryDate.Format("2006-01-02 15:04 MST"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHIVE ID\tSIZE\tCREATED\tDESCRIPTION")
	for _, a := range inv.ArchiveList {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			a.ArchiveID, humanBytes(a.Size), a.CreationDate.Format("2006-01-02"), a.ArchiveDescription)
	}
	fmt.Fprintf(tw, "\n%d archives, %s total\n", len(inv.ArchiveList), humanBytes(inv.TotalSize()))
	return tw.Flush()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
