package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every key in the collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		coll, err := currentCollection(cmd)
		if err != nil {
			return err
		}

		for p := range coll.Pairs() {
			fmt.Println(p.Key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
