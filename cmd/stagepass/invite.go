package main

import (
	"github.com/spf13/cobra"

	"github.com/MrEthical07/stagepass"
)

// NewInviteCmd creates the invite subcommand.
func NewInviteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Create an account and mail the invitee a password-reset link",
		RunE:  runInvite,
	}
	cmd.Flags().String("email", "", "invitee email address")
	cmd.Flags().String("user-type", "user", "user type recorded on the account")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runInvite(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	userType, _ := cmd.Flags().GetString("user-type")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg, newLogger(cmd, cfg))
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.engine.Invite(cmd.Context(), stagepass.InviteRequest{Email: email, UserType: userType})
	if err != nil {
		return err
	}
	cmd.Println("invited", email, "as user", res.UserID)
	return nil
}
