package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/tzrikka/xdg"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/student-go/wsengine/pkg/websocket"
)

const (
	configDirName  = "wsengine"
	configFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:    "wsengine",
		Usage:   "connects to a WebSocket peer, logs received text messages, and pings it periodically",
		Version: bi.Main.Version,
		Flags:   flags(),
		Action:  run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	path := configFile()

	return []cli.Flag{
		&cli.StringFlag{
			Name:  "host",
			Usage: "WebSocket server host",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSENGINE_HOST"),
				toml.TOML("connection.host", path),
			),
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "WebSocket server port",
			Value: 443,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSENGINE_PORT"),
				toml.TOML("connection.port", path),
			),
			Validator: validatePort,
		},
		&cli.StringFlag{
			Name:  "resource",
			Usage: "HTTP resource path used in the opening handshake",
			Value: "/",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSENGINE_RESOURCE"),
				toml.TOML("connection.resource", path),
			),
		},
		&cli.StringFlag{
			Name:  "api-key",
			Usage: "API key sent in the opening handshake's appKey header",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSENGINE_API_KEY"),
				toml.TOML("connection.api_key", path),
			),
		},
		&cli.IntFlag{
			Name:  "frame-size",
			Usage: "maximum payload size of a single wire frame",
			Value: 4096,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSENGINE_FRAME_SIZE"),
				toml.TOML("connection.frame_size", path),
			),
		},
		&cli.IntFlag{
			Name:  "message-chunk-size",
			Usage: "maximum payload size of a single SendMessage call",
			Value: 65535,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSENGINE_MESSAGE_CHUNK_SIZE"),
				toml.TOML("connection.message_chunk_size", path),
			),
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
		},
	}
}

func validatePort(p int) error {
	if p < 0 || p > 65535 {
		return errors.New("out of range [0-65535]")
	}
	return nil
}

// configFile returns the path to the app's configuration file,
// creating an empty one if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, configDirName, configFileName)
	if err != nil {
		fmt.Printf("Error: failed to create config file: %v\n", err)
		os.Exit(1)
	}
	return altsrc.StringSourcer(path)
}

func newLogger(pretty bool) zerolog.Logger {
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func run(ctx context.Context, cmd *cli.Command) error {
	log := newLogger(cmd.Bool("pretty-log"))

	host := cmd.String("host")
	if host == "" {
		return fmt.Errorf("--host is required")
	}

	s, code := websocket.New(
		host,
		uint16(cmd.Int("port")), //nolint:gosec // bounded to [0, 65535] by validatePort.
		cmd.String("resource"),
		cmd.String("api-key"),
		cmd.Int("frame-size"),
		cmd.Int("message-chunk-size"),
		websocket.WithLogger(log),
	)
	if code != websocket.OK {
		return fmt.Errorf("failed to construct session: %v", code)
	}
	defer s.Delete()

	s.RegisterConnectedCallback(func(s *websocket.Session) int {
		log.Info().Str("session_id", s.ID()).Msg("connected")
		return 0
	})
	s.RegisterCloseCallback(func(s *websocket.Session, reason string) int {
		log.Warn().Str("session_id", s.ID()).Str("reason", reason).Msg("connection closed")
		return 0
	})
	s.RegisterTextMessageCallback(func(s *websocket.Session, data []byte, _ int) int {
		log.Info().Str("text", string(data)).Msg("received text message")
		return 0
	})
	s.RegisterPingCallback(func(s *websocket.Session, data []byte, _ int) int {
		log.Debug().Str("payload", string(data)).Msg("received ping")
		if code := s.SendPong(data); code != websocket.OK {
			log.Warn().Str("code", code.String()).Msg("failed to send pong")
		}
		return 0
	})

	if code := s.Connect(5000); code != websocket.OK {
		return fmt.Errorf("failed to connect: %v", code)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return receiveLoop(gctx, s) })
	g.Go(func() error { return pingLoop(gctx, s, log) })

	<-ctx.Done()
	code = s.Disconnect(websocket.CloseNormal, "client shutting down")
	log.Info().Str("code", code.String()).Msg("disconnected")

	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("background loop exited with error")
	}
	return nil
}

// receiveLoop drives the engine's caller-polled [websocket.Session.Receive]
// until ctx is canceled or the connection ends.
func receiveLoop(ctx context.Context, s *websocket.Session) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !s.IsConnected() {
			return nil
		}
		if code := s.Receive(200); code != websocket.OK {
			return nil
		}
	}
}

// pingLoop sends a keepalive ping on a fixed interval until ctx is
// canceled or the connection ends.
func pingLoop(ctx context.Context, s *websocket.Session, log zerolog.Logger) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.IsConnected() {
				return nil
			}
			if code := s.SendPing(nil); code != websocket.OK {
				log.Warn().Str("code", code.String()).Msg("failed to send keepalive ping")
			}
		}
	}
}
