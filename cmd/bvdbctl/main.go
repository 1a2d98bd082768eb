// Command bvdbctl is a thin demonstration CLI over package bvdb,
// grounded in the teacher's cmd/sqvect's cobra tree. It is explicitly
// out of the core's scope (spec §1): bvdb itself never imports cobra or
// any CLI package, and this binary's only job is to wire a directory
// path and an Oracle to the Facade and print results.
//
// Since a real embedding provider is also out of scope (spec §1), this
// binary uses a small deterministic hash-based stand-in Oracle so the
// tool runs end-to-end without a network dependency; it still performs
// the credential check spec §6 documents (a missing EMBEDDING_API_KEY
// fails fast with exit code 5) so the contract is demonstrated even
// though the key is never actually sent anywhere.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cohere-ai/BinaryVectorDB"
)

var (
	dirFlag   string
	modelFlag string
	dimFlag   int
)

var rootCmd = &cobra.Command{
	Use:   "bvdbctl",
	Short: "CLI for a disk-resident binary vector search database",
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new database directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Printf("initialized %s (model=%s dim=%d)\n", dirFlag, db.Model(), db.Dim())
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <id> <text>",
	Short: "Add or update one document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return usageError(fmt.Errorf("invalid id %q: %w", args[0], err))
		}
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		save, _ := cmd.Flags().GetBool("save")
		err = db.AddDocuments(cmd.Context(), []int64{id}, [][]byte{[]byte(args[1])},
			func(doc []byte) (string, error) { return string(doc), nil },
			bvdb.AddOptions{Save: save})
		if err != nil {
			return err
		}
		fmt.Printf("added id=%d\n", id)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove one document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return usageError(fmt.Errorf("invalid id %q: %w", args[0], err))
		}
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		save, _ := cmd.Flags().GetBool("save")
		if err := db.RemoveDoc(cmd.Context(), id, save); err != nil {
			return err
		}
		fmt.Printf("removed id=%d\n", id)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search for the k nearest documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("top-k")
		binaryOversample, _ := cmd.Flags().GetInt("binary-oversample")
		int8Oversample, _ := cmd.Flags().GetInt("int8-oversample")
		outputJSON, _ := cmd.Flags().GetBool("json")

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		hits, err := db.Search(cmd.Context(), args[0], k, binaryOversample, int8Oversample)
		if err != nil {
			return err
		}

		if outputJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(hits)
		}
		for _, h := range hits {
			fmt.Printf("%d\tcossim=%.4f\tbinary=%.4f\thamming=%d\t%s\n",
				h.DocID, h.ScoreCosSim, h.ScoreBinary, h.ScoreHamming, h.Doc)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print document count and config",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Printf("model=%s dim=%d count=%d\n", db.Model(), db.Dim(), db.Len())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dirFlag, "dir", "d", "", "database directory (required)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "demo-hash-embedder", "embedding model name recorded at creation")
	rootCmd.PersistentFlags().IntVar(&dimFlag, "dim", 1024, "embedding dimension at creation time")
	rootCmd.MarkPersistentFlagRequired("dir")

	addCmd.Flags().Bool("save", true, "persist the binary index after this call")
	removeCmd.Flags().Bool("save", true, "persist the binary index after this call")

	searchCmd.Flags().Int("top-k", 10, "number of results")
	searchCmd.Flags().Int("binary-oversample", 0, "Phase I oversample factor (0 = default)")
	searchCmd.Flags().Int("int8-oversample", 0, "Phase II oversample factor (0 = default)")
	searchCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(initCmd, addCmd, removeCmd, searchCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bvdbctl:", err)
		os.Exit(exitCode(err))
	}
}

// usageErr marks an error as caller misuse (exit code 2) rather than a
// bvdb.Error the exit-code mapping below already understands.
type usageErr struct{ err error }

func (u *usageErr) Error() string { return u.err.Error() }
func (u *usageErr) Unwrap() error { return u.err }

func usageError(err error) error { return &usageErr{err: err} }

// exitCode maps an error to the informational CLI exit codes spec §6
// documents. It is deliberately a pure function over error values so it
// needs no access to the Facade.
func exitCode(err error) int {
	var u *usageErr
	if errors.As(err, &u) {
		return 2
	}
	var credErr *missingCredentialError
	if errors.As(err, &credErr) {
		return 5
	}
	var bvdbErr *bvdb.Error
	if errors.As(err, &bvdbErr) && bvdbErr.Kind == bvdb.KindOracleFailure {
		return 6
	}
	switch {
	case errors.Is(err, bvdb.ErrNotFound):
		return 3
	case errors.Is(err, bvdb.ErrCorruptOrForeignDirectory):
		return 4
	case errors.Is(err, bvdb.ErrOracleFailure):
		return 6
	default:
		return 1
	}
}

type missingCredentialError struct{}

func (*missingCredentialError) Error() string {
	return "EMBEDDING_API_KEY is not set"
}

// openDB performs the credential check spec §6 requires, then opens the
// database with the demo hash Oracle.
func openDB(ctx context.Context) (*bvdb.DB, error) {
	if os.Getenv("EMBEDDING_API_KEY") == "" {
		return nil, &missingCredentialError{}
	}
	oracle := &bvdb.BaseOracle{EmbedFn: hashEmbed}
	return bvdb.Open(ctx, dirFlag, bvdb.OpenOptions{
		Model:  modelFlag,
		Dim:    dimFlag,
		Oracle: oracle,
		Logger: bvdb.NewStderrLogger(bvdb.LevelInfo),
	})
}

// hashEmbed is a deterministic stand-in for a real embedding model: it
// expands a SHA-256 digest of the text into a pseudo-random float
// vector. It has no semantic meaning beyond letting bvdbctl be run
// end-to-end without a network dependency; a real deployment replaces
// this with a client for an actual embedding provider.
func hashEmbed(_ context.Context, text string, _ bvdb.Role) ([]float32, error) {
	dim := dimFlag
	if dim <= 0 || dim%8 != 0 {
		return nil, fmt.Errorf("bvdbctl: dim %d must be a positive multiple of 8", dim)
	}
	out := make([]float32, dim)
	digest := sha256.Sum256([]byte(text))
	state := digest
	for i := 0; i < dim; i++ {
		if i%32 == 0 && i > 0 {
			state = sha256.Sum256(state[:])
		}
		b := state[i%32]
		out[i] = float32(int(b)-128) / 128
	}
	return out, nil
}
