package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/3leaps/gocrack/pkg/keyspace"
	"github.com/3leaps/gocrack/pkg/output"
	"github.com/3leaps/gocrack/pkg/partition"
)

var keyspaceCmd = &cobra.Command{
	Use:   "keyspace",
	Short: "Inspect keyspaces",
}

var keyspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in keyspaces",
	Args:  cobra.NoArgs,
	RunE:  runKeyspaceList,
}

var keyspacePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show how a keyspace would be sliced",
	Long: `Show the slices the coordinator would create for one hash.

Example:
  gocrack keyspace plan --slices 4
  gocrack keyspace plan --keyspace example --slices 20
  gocrack keyspace plan --keyspace-file keyspace.yaml --slices 8 -o jsonl`,
	Args: cobra.NoArgs,
	RunE: runKeyspacePlan,
}

var (
	planKeyspace     string
	planKeyspaceFile string
	planSlices       int
	planFormat       string
)

func init() {
	rootCmd.AddCommand(keyspaceCmd)
	keyspaceCmd.AddCommand(keyspaceListCmd)
	keyspaceCmd.AddCommand(keyspacePlanCmd)

	keyspacePlanCmd.Flags().StringVar(&planKeyspace, "keyspace", "", "Keyspace name (default from config)")
	keyspacePlanCmd.Flags().StringVar(&planKeyspaceFile, "keyspace-file", "", "YAML keyspace definition")
	keyspacePlanCmd.Flags().IntVar(&planSlices, "slices", 4, "Number of slices")
	keyspacePlanCmd.Flags().StringVarP(&planFormat, "output", "o", FormatTable, "Output format (table, json, yaml, jsonl)")
}

func runKeyspaceList(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tMIN\tMAX\tSIZE\tFIRST\tLAST")
	for _, name := range keyspace.Names() {
		enc, err := keyspace.Lookup(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n", name, enc.MinValue(), enc.MaxValue(),
			keyspace.Size(enc), enc.Encode(enc.MinValue()), enc.Encode(enc.MaxValue()))
	}
	return w.Flush()
}

func runKeyspacePlan(cmd *cobra.Command, args []string) error {
	if err := validateFormat(planFormat); err != nil {
		return err
	}
	o := map[string]any{}
	set(cmd, o, "keyspace", "keyspace.name", planKeyspace)
	set(cmd, o, "keyspace-file", "keyspace.file", planKeyspaceFile)
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}

	enc, err := keyspace.Resolve(cfg.Keyspace.Name, cfg.Keyspace.File)
	if err != nil {
		return exitError(ExitInvalidArgument, "Invalid keyspace", err)
	}
	slices, err := planSlicesFor(enc, planSlices)
	if err != nil {
		return exitError(ExitInvalidArgument, "Invalid --slices value", err)
	}

	out := cmd.OutOrStdout()
	switch planFormat {
	case FormatTable:
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "SLICE\tSTART\tEND\tFIRST\tLAST\tSIZE")
		for _, s := range slices {
			_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%d\n", s.Index, s.Start, s.End, s.StartStr, s.EndStr, s.Size)
		}
		return w.Flush()
	case FormatJSONL:
		w := output.NewJSONLWriter(out, cfg.Keyspace.Name)
		for i := range slices {
			if err := w.WriteSlice(cmd.Context(), &slices[i]); err != nil {
				return err
			}
		}
		return w.Close()
	default:
		return encode(out, planFormat, slices)
	}
}

// planSlicesFor splits the whole domain of enc and returns the non-empty
// slices, the same ones the coordinator turns into tasks.
func planSlicesFor(enc keyspace.Encoder, parts int) ([]output.SliceRecord, error) {
	ranges, err := partition.Split(enc.MinValue(), enc.MaxValue(), parts)
	if err != nil {
		return nil, err
	}
	var slices []output.SliceRecord
	for i, r := range partition.NonEmpty(ranges) {
		slices = append(slices, output.SliceRecord{
			Index:    i,
			Start:    r.Start,
			End:      r.End,
			StartStr: enc.Encode(r.Start),
			EndStr:   enc.Encode(r.End),
			Size:     r.Len(),
		})
	}
	return slices, nil
}
