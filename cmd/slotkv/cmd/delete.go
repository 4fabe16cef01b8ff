package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coll, err := currentCollection(cmd)
		if err != nil {
			return err
		}

		removed, _, err := coll.Remove(args[0])
		if err != nil {
			return fmt.Errorf("delete %q: %w", args[0], err)
		}
		if !removed {
			return fmt.Errorf("key %q not found", args[0])
		}

		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
