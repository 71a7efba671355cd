package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/ui"
)

var invitationsCmd = &cobra.Command{
	Use:   "invitations",
	Short: "List and accept sharing invitations",
}

var invitationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending invitations",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.close()

		if !a.remote.Available() {
			fmt.Fprintf(os.Stderr, "Error: no server credential configured\n")
			os.Exit(1)
		}

		invites, err := a.remote.Invitations(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching invitations: %v\n", err)
			os.Exit(1)
		}
		if len(invites) == 0 {
			fmt.Println("No pending invitations")
			return
		}
		for _, inv := range invites {
			fmt.Printf("%s %s  %s %s (%s, %s)\n",
				ui.RenderAccent(inv.ID), ui.RenderMuted("from "+inv.OwnerName),
				inv.ResourceType, inv.ResourceID, inv.Permission, inv.Status)
		}
	},
}

var invitationsAcceptCmd = &cobra.Command{
	Use:   "accept <id>",
	Short: "Accept an invitation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.close()

		if !a.remote.Available() {
			fmt.Fprintf(os.Stderr, "Error: no server credential configured\n")
			os.Exit(1)
		}

		if err := a.remote.AcceptInvitation(ctx, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error accepting invitation: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Invitation accepted; shared data arrives on the next sync\n", ui.RenderSuccess("✓"))
	},
}

func init() {
	invitationsCmd.AddCommand(invitationsListCmd)
	invitationsCmd.AddCommand(invitationsAcceptCmd)
}
