package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <handle>",
	Short: "Create a new certificate authority aggregate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if _, err := store.Add(context.Background(), caInit{HandleVal: args[0]}); err != nil {
			return fmt.Errorf("add: %w", err)
		}
		fmt.Printf("add: created %s\n", args[0])
		return nil
	},
}
