package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every document from the collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		coll, err := currentCollection(cmd)
		if err != nil {
			return err
		}
		if err := coll.Clear(); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		fmt.Println("cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
