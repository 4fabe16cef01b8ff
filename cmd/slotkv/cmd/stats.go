package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print document count and file size for the collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		coll, err := currentCollection(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("collection:  %s\n", collectionName)
		fmt.Printf("documents:   %d\n", coll.Count())
		fmt.Printf("size_bytes:  %d\n", coll.SizeBytes())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
