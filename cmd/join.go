package cmd

import (
	"fmt"
	"strings"

	"github.com/BioHazard786/Warpchat/internal/peer"
	"github.com/spf13/cobra"
)

var flagJoinUser string

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Join a room someone else created",
	Long: `Join an existing room by name and start chatting once the peer
connection is up.

Examples:
  warpchat join otter-ramen-alice-blue
  warpchat join otter-ramen-alice-blue --user bob --relay-only --turn turn:turn.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomName, err := parseRoomName(args[0])
		if err != nil {
			return err
		}
		return runChat(cmd.Context(), roomName, userOrRandom(flagJoinUser), peer.Responder)
	},
}

func parseRoomName(input string) (string, error) {
	name := strings.TrimSpace(input)
	if name == "" {
		return "", fmt.Errorf("room name cannot be empty")
	}
	return name, nil
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagJoinUser, "user", "u", "", "Your display name (random if empty)")
}
