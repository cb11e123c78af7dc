package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BioHazard786/Warpchat/internal/config"
	"github.com/BioHazard786/Warpchat/internal/peer"
	"github.com/BioHazard786/Warpchat/internal/room"
	"github.com/BioHazard786/Warpchat/internal/seal"
	"github.com/BioHazard786/Warpchat/internal/signaling"
	"github.com/BioHazard786/Warpchat/internal/ui"
)

const connectTimeout = 15 * time.Second

// ChatContext holds everything one chat session runs on.
type ChatContext struct {
	Config      *config.Config
	Client      *signaling.Client
	Gateway     *signaling.Gateway
	Coordinator *room.Coordinator
}

func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(configOptions())
	if err != nil {
		return nil, NewError("load config", err)
	}
	return cfg, nil
}

// NewChatContext dials the relay and builds a coordinator wired to it.
func NewChatContext(ctx context.Context, cfg *config.Config) (*ChatContext, error) {
	echo, err := room.ParseEchoPolicy(cfg.Echo)
	if err != nil {
		return nil, NewError("load config", err)
	}
	wire, err := room.ParseWireFormat(cfg.Wire)
	if err != nil {
		return nil, NewError("load config", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client := signaling.NewClient(cfg.ServerURL)
	if err := client.Connect(dialCtx); err != nil {
		return nil, WrapError("connect to relay", err, cfg.ServerURL)
	}

	logger := slog.Default()
	gateway := signaling.NewGateway(client, logger)
	go gateway.Start()

	ice := peer.ICEFromConfig(cfg)
	newSession := func(role peer.Role) (room.Session, error) {
		s, err := peer.New(role, ice, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	coord := room.New(room.Options{
		Curve:      cfg.Curve,
		Passphrase: cfg.Passphrase,
		Email:      cfg.Email,
		Echo:       echo,
		Wire:       wire,
		Logger:     logger,
	}, room.Deps{
		Gateway:    gateway,
		NewSession: newSession,
		Cipher:     seal.NewChannel(seal.Options{WorkFactor: cfg.WorkFactor}),
	})

	return &ChatContext{
		Config:      cfg,
		Client:      client,
		Gateway:     gateway,
		Coordinator: coord,
	}, nil
}

func (c *ChatContext) Close() {
	if c.Coordinator != nil {
		c.Coordinator.Close()
	}
	if c.Client != nil {
		c.Client.Close()
	}
}

// runChat drives one session from relay connection to the final summary.
func runChat(ctx context.Context, roomName, user string, role peer.Role) error {
	if user == "" {
		return ErrNoUser
	}

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	chat, err := NewChatContext(ctx, cfg)
	stopSpinner()
	if err != nil {
		return err
	}
	defer chat.Close()

	coord := chat.Coordinator
	slog.Debug("session starting", "session", coord.ID(), "room", roomName, "role", role)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- coord.Run(ctx)
		cancel()
	}()

	started := time.Now()
	switch role {
	case peer.Initiator:
		err = coord.CreateRoom(ctx, roomName, user)
	default:
		err = coord.JoinRoom(ctx, roomName, user)
	}
	if err != nil {
		return NewError("open room", err)
	}

	if role == peer.Initiator {
		ui.RenderRoomInfo(roomName, user)
	}

	if err := ui.RunChat(ctx, coord); err != nil {
		return err
	}

	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("coordinator stopped", "error", err)
	}

	renderSummary(coord, started)
	return nil
}

func renderSummary(coord *room.Coordinator, started time.Time) {
	stats := coord.Stats()
	since := started
	if !stats.ConnectedAt.IsZero() {
		since = stats.ConnectedAt
	}

	fmt.Println()
	ui.RenderSessionSummary(ui.SessionSummary{
		Room:              coord.Room(),
		User:              coord.UserName(),
		State:             coord.State().String(),
		Sent:              stats.Sent,
		Received:          stats.Received,
		Deferred:          stats.Deferred,
		DecryptFailures:   stats.DecryptFailures,
		SendFailures:      stats.SendFailures,
		LocalFingerprint:  coord.LocalFingerprint(),
		RemoteFingerprint: coord.RemoteFingerprint(),
		Duration:          time.Since(since),
	})
}
