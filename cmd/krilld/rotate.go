package main

import (
	"context"
	"fmt"
	"os/user"

	"github.com/spf13/cobra"
)

var rotateActor string

func init() {
	rotateCmd.Flags().StringVar(&rotateActor, "actor", "", "who is issuing this command (defaults to the current OS user)")
}

func defaultActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

var rotateCmd = &cobra.Command{
	Use:   "rotate <handle>",
	Short: "Send a rotate-signing-key command to a certificate authority aggregate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		actor := rotateActor
		if actor == "" {
			actor = defaultActor()
		}
		agg, err := store.Command(context.Background(), caCommand{HandleVal: args[0], ActorVal: actor})
		if err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
		fmt.Printf("rotate: %s now at version %d\n", args[0], agg.Version())
		return nil
	},
}
