package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <key> <json-value>",
	Short: "Add or update a document",
	Long: `Add or update a document in the collection.

Example:
  slotkv put user:1 '{"name":"ada","age":30}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		coll, err := currentCollection(cmd)
		if err != nil {
			return err
		}

		var value document
		if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
			return fmt.Errorf("parse json value: %w", err)
		}

		if err := coll.AddOrUpdate(args[0], value); err != nil {
			return fmt.Errorf("put %q: %w", args[0], err)
		}

		fmt.Printf("put %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}
