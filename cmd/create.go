package cmd

import (
	"github.com/BioHazard786/Warpchat/internal/names"
	"github.com/BioHazard786/Warpchat/internal/peer"
	"github.com/spf13/cobra"
)

var flagCreateUser string

var createCmd = &cobra.Command{
	Use:     "create [room]",
	Aliases: []string{"c"},
	Short:   "Create a chat room and wait for a peer",
	Long: `Create a room on the signaling relay and wait for someone to join it.
A four word room name is generated when none is given.

Examples:
  warpchat create
  warpchat create otter-ramen-alice-blue --user alice
  warpchat create --server wss://relay.example.com/ws --echo confirmed`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomName := names.Room()
		if len(args) == 1 {
			roomName = args[0]
		}
		return runChat(cmd.Context(), roomName, userOrRandom(flagCreateUser), peer.Initiator)
	},
}

func userOrRandom(user string) string {
	if user != "" {
		return user
	}
	return names.User()
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&flagCreateUser, "user", "u", "", "Your display name (random if empty)")
}
