package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Load every known aggregate into the in-memory cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Warm(context.Background()); err != nil {
			return fmt.Errorf("warm: %w", err)
		}
		fmt.Println("warm: ok")
		return nil
	},
}
