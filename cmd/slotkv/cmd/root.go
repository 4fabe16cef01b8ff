package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/slotkv/pkg/collection"
	"github.com/ssargent/slotkv/pkg/config"
	"github.com/ssargent/slotkv/pkg/vaultdb"
)

type ctxKey string

const (
	ctxKeyDatabase   ctxKey = "slotkv-database"
	ctxKeyCollection ctxKey = "slotkv-collection"
)

// document is the value type every slotkv CLI command operates on: an
// arbitrary JSON object, matching the store's "document store" framing.
type document = map[string]any

var (
	dataDir        string
	databaseName   string
	collectionName string
)

var rootCmd = &cobra.Command{
	Use:   "slotkv",
	Short: "slotkv - embedded key-value document store",
	Long: `slotkv is an embedded, single-process, thread-safe key-value
document store. Each collection is one file on disk; this CLI drives
one collection of JSON documents at a time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}

		db, err := vaultdb.NewDatabase(config.DatabaseOptions{
			BaseDirectory: dataDir,
			DatabaseName:  databaseName,
		}, nil)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}

		coll, err := vaultdb.Open[string, document](db, collectionName, nil)
		if err != nil {
			return fmt.Errorf("open collection %q: %w", collectionName, err)
		}

		ctx := context.WithValue(cmd.Context(), ctxKeyDatabase, db)
		ctx = context.WithValue(ctx, ctxKeyCollection, coll)
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		db, ok := cmd.Context().Value(ctxKeyDatabase).(*vaultdb.Database)
		if !ok {
			return nil
		}
		return db.Close()
	},
}

// Execute runs the root command. It is called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func currentCollection(cmd *cobra.Command) (*collection.Collection[string, document], error) {
	coll, ok := cmd.Context().Value(ctxKeyCollection).(*collection.Collection[string, document])
	if !ok {
		return nil, fmt.Errorf("collection not found in command context")
	}
	return coll, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "./data", "base directory the database's collection files live under")
	rootCmd.PersistentFlags().StringVar(&databaseName, "database", "default", "database name (one directory under --data-dir)")
	rootCmd.PersistentFlags().StringVarP(&collectionName, "collection", "c", "documents", "collection name (one file under the database directory)")
}
