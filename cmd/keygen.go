package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BioHazard786/Warpchat/internal/seal"
	"github.com/BioHazard786/Warpchat/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagKeygenUser string
	flagKeygenOut  string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a keypair the way a chat session does",
	Long: `Generate a keypair with the configured curve, passphrase and work factor
and print its fingerprint. Chat sessions create a fresh keypair every time;
this is for checking settings and comparing fingerprints.

Examples:
  warpchat keygen --user alice
  warpchat keygen --passphrase hunter2 --out alice.age`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}

		passphrase := cfg.Passphrase
		random := passphrase == ""
		if random {
			if passphrase, err = seal.RandomPassphrase(); err != nil {
				return NewError("generate passphrase", err)
			}
		}

		stopSpinner := ui.RunSpinner("Generating keypair...")
		channel := seal.NewChannel(seal.Options{WorkFactor: cfg.WorkFactor})
		id := seal.Identity{Name: userOrRandom(flagKeygenUser), Email: cfg.Email}
		kp, err := channel.GenerateKeyPair(cmd.Context(), id, cfg.Curve, passphrase)
		stopSpinner()
		if err != nil {
			return NewError("generate keypair", err)
		}

		items := []ui.KeyTableItem{
			{Field: "Identity", Value: id.String()},
			{Field: "Curve", Value: cfg.Curve},
			{Field: "Public key", Value: kp.PublicKey},
			{Field: "Fingerprint", Value: seal.Fingerprint(kp.PublicKey)},
			{Field: "Work factor", Value: strconv.Itoa(cfg.WorkFactor)},
		}

		fmt.Println()
		ui.RenderKeyTable(items)

		if random {
			fmt.Println()
			fmt.Println(ui.KeyNoticeView("Random passphrase (shown once):", passphrase))
			if flagKeygenOut == "" {
				ui.PrintWarning("Nothing was saved; use --out to keep the sealed key")
			}
		}

		if flagKeygenOut != "" {
			if err := os.WriteFile(flagKeygenOut, []byte(kp.PrivateKey), 0600); err != nil {
				return NewError("write private key", err)
			}
			ui.PrintSuccessf("Sealed private key written to %s", flagKeygenOut)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().StringVarP(&flagKeygenUser, "user", "u", "", "Name recorded in the key identity (random if empty)")
	keygenCmd.Flags().StringVarP(&flagKeygenOut, "out", "o", "", "Write the sealed private key to this file")
}
