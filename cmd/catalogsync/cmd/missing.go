package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var missingCmd = &cobra.Command{
	Use:   "missing",
	Short: "List source products absent from the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		missing, err := a.service.MissingProducts(ctx)
		if err != nil {
			return err
		}

		for _, id := range missing {
			fmt.Println(id)
		}
		fmt.Printf("%d missing\n", len(missing))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(missingCmd)
}
