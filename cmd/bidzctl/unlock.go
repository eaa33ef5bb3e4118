package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var unlockEmail string

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Lift a lockout before it expires",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		user, err := store.UnlockAccount(cmd.Context(), unlockEmail, operatorMeta())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", color.GreenString("unlocked"), user.Email, user.ID)
		return nil
	},
}

func init() {
	unlockCmd.Flags().StringVar(&unlockEmail, "email", "", "email of the locked account")
	cobra.CheckErr(unlockCmd.MarkFlagRequired("email"))
}
