package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coll, err := currentCollection(cmd)
		if err != nil {
			return err
		}

		value, ok := coll.TryGet(args[0])
		if !ok {
			return fmt.Errorf("key %q not found", args[0])
		}

		out, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
