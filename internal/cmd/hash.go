package cmd

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3leaps/gocrack/pkg/digest"
)

var hashCmd = &cobra.Command{
	Use:   "hash [plaintext]...",
	Short: "Print digests of plaintexts",
	Long: `Print the digest of each argument, or of each stdin line when no
arguments are given. Useful for building test hash lists.

Example:
  gocrack hash 050-1234567
  gocrack hash --algorithm sha256 secret
  printf '050-0000001\n050-0000002\n' | gocrack hash > hashes.txt`,
	RunE: runHash,
}

var hashAlgorithm string

func init() {
	rootCmd.AddCommand(hashCmd)
	hashCmd.Flags().StringVarP(&hashAlgorithm, "algorithm", "a", digest.MD5, "Digest algorithm (md5, sha1, sha256)")
}

func runHash(cmd *cobra.Command, args []string) error {
	algo, err := digest.Lookup(hashAlgorithm)
	if err != nil {
		return exitError(ExitInvalidArgument, "Invalid --algorithm value", err)
	}

	out := cmd.OutOrStdout()
	if len(args) > 0 {
		for _, a := range args {
			_, _ = fmt.Fprintln(out, algo.Sum(a))
		}
		return nil
	}

	sc := bufio.NewScanner(cmd.InOrStdin())
	for sc.Scan() {
		_, _ = fmt.Fprintln(out, algo.Sum(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return exitError(ExitFileReadError, "Failed to read stdin", err)
	}
	return nil
}
