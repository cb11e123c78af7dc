package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/BioHazard786/Warpchat/internal/config"
	"github.com/BioHazard786/Warpchat/internal/ui"
	"github.com/BioHazard786/Warpchat/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagConfig     string
	flagServer     string
	flagSTUN       string
	flagTURN       string
	flagTURNUser   string
	flagTURNPass   string
	flagRelay      bool
	flagCurve      string
	flagPassphrase string
	flagEmail      string
	flagEcho       string
	flagWire       string
	flagWorkFactor int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpchat",
	Short: "End-to-end encrypted peer-to-peer chat over WebRTC",
	Long: `Warpchat pairs two people through a small signaling relay, opens a direct
WebRTC data channel between them and encrypts every message with keys that
never leave the two machines. The relay only ever sees the connection
offer and answer.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// The first interrupt cancels the command context so sessions and the
	// relay can shut down; a second one exits immediately.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
		os.Exit(130)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

// configOptions collects the persistent flags for config.Load.
func configOptions() config.Options {
	return config.Options{
		ConfigFile: flagConfig,
		ServerURL:  flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
		Curve:      flagCurve,
		Passphrase: flagPassphrase,
		WorkFactor: flagWorkFactor,
		Email:      flagEmail,
		Echo:       flagEcho,
		Wire:       flagWire,
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default $XDG_CONFIG_HOME/warpchat/config.yaml)")
	pf.StringVarP(&flagServer, "server", "s", "", "Signaling relay websocket URL")
	pf.StringVar(&flagSTUN, "stun", "", "Custom STUN server")
	pf.StringVar(&flagTURN, "turn", "", "Custom TURN server")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	pf.BoolVar(&flagRelay, "relay-only", false, "Force TURN relay (requires --turn)")
	pf.StringVar(&flagCurve, "curve", "", "Key curve (curve25519)")
	pf.StringVar(&flagPassphrase, "passphrase", "", "Passphrase sealing the private key (random if empty)")
	pf.StringVar(&flagEmail, "email", "", "Email recorded in the key identity")
	pf.StringVar(&flagEcho, "echo", "", "When sent messages appear locally: immediate or confirmed")
	pf.StringVar(&flagWire, "wire", "", "Payload framing: legacy or tagged")
	pf.IntVar(&flagWorkFactor, "work-factor", 0, "scrypt work factor for sealing keys")
}
