package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/domain/entities"
	"github.com/satriahrh/flightvoice/internal/client"
	"github.com/satriahrh/flightvoice/internal/config"
	"github.com/satriahrh/flightvoice/internal/logging"
)

type rootOptions struct {
	url                  string
	dialTimeout          time.Duration
	reconnectBase        time.Duration
	maxReconnectAttempts int
	verbose              bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "voiceclient",
		Short:         "Ask the flight voice assistant from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.url, "url", "ws://localhost:8080/ws", "voice server websocket URL")
	flags.DurationVar(&opts.dialTimeout, "dial-timeout", 5*time.Second, "connection timeout")
	flags.DurationVar(&opts.reconnectBase, "reconnect-base", time.Second, "reconnect delay, multiplied by the attempt number")
	flags.IntVar(&opts.maxReconnectAttempts, "max-reconnects", 5, "reconnect attempts before giving up")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newAskCmd(opts), newPingCmd(opts))
	return cmd
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	return logging.New(config.LoggingConfig{Level: level, Format: "console"})
}

func (o *rootOptions) dial(ctx context.Context, logger *zap.Logger) (*client.Transport, error) {
	return client.Dial(ctx, client.TransportConfig{
		URL:                  o.url,
		DialTimeout:          o.dialTimeout,
		ReconnectBase:        o.reconnectBase,
		MaxReconnectAttempts: o.maxReconnectAttempts,
	}, logger)
}

func newAskCmd(root *rootOptions) *cobra.Command {
	var (
		out      string
		capture  = client.DefaultCaptureConfig()
		asJSON   bool
		realtime bool
	)

	cmd := &cobra.Command{
		Use:   "ask <audio-file>",
		Short: "Stream a recorded question and play back the answer",
		Long: `Stream a recorded question to the server and wait for the answer.

The file is sent in chunks of --chunk-bytes. With --realtime a chunk is sent
every --chunk-interval, as a microphone would. Speech fragments are written
to --out in playback order.

Examples:
  voiceclient ask question.webm --out answer.mp3
  voiceclient --url ws://voice.internal:8080/ws ask question.webm --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := root.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			audio, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open audio file: %w", err)
			}
			defer audio.Close()

			var sink io.Writer = io.Discard
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				sink = f
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			transport, err := root.dial(ctx, logger)
			if err != nil {
				return err
			}
			defer transport.Close()

			if !realtime {
				capture.ChunkInterval = 0
			}
			recorder := client.NewRecorder(transport, capture, logger)
			playback := client.NewPlaybackScheduler(ctx, client.NewWriterPlayer(sink), logger)
			assistant := client.NewAssistant(transport, recorder, playback, logger)

			w := cmd.OutOrStdout()
			if !asJSON {
				assistant.OnEvent = func(event entities.Event) { printEvent(w, event) }
			}

			answer, err := assistant.Ask(ctx, audio)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}
			if out != "" {
				fmt.Fprintf(w, "wrote %d speech fragments to %s\n", answer.Fragments, out)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&out, "out", "o", "", "write synthesized speech to this file")
	flags.BoolVar(&asJSON, "json", false, "print the collected answer as JSON")
	flags.BoolVar(&realtime, "realtime", false, "pace chunks like a live recording")
	flags.DurationVar(&capture.ChunkInterval, "chunk-interval", client.DefaultChunkInterval, "delay between chunks with --realtime")
	flags.IntVar(&capture.ChunkBytes, "chunk-bytes", 4096, "bytes per audio chunk")
	return cmd
}

func newPingCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server answers on the websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := root.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), root.dialTimeout+5*time.Second)
			defer cancel()

			transport, err := root.dial(ctx, logger)
			if err != nil {
				return err
			}
			defer transport.Close()

			started := time.Now()
			if err := transport.Ping(); err != nil {
				return err
			}
			for {
				select {
				case event, ok := <-transport.Events():
					if !ok {
						return client.ErrClosed
					}
					if event.Type == entities.EventPong {
						fmt.Fprintf(cmd.OutOrStdout(), "pong in %v\n", time.Since(started).Round(time.Millisecond))
						return nil
					}
				case <-ctx.Done():
					return fmt.Errorf("no pong: %w", ctx.Err())
				}
			}
		},
	}
}

func printEvent(w io.Writer, event entities.Event) {
	switch event.Type {
	case entities.EventTranscription:
		fmt.Fprintf(w, "you: %v\n", event.Data)
	case entities.EventIntent, entities.EventQueryResult:
		data, _ := json.Marshal(event.Data)
		fmt.Fprintf(w, "%s: %s\n", event.Type, data)
	case entities.EventResponseChunk:
		fmt.Fprint(w, event.Data)
	case entities.EventResponse:
		fmt.Fprintln(w)
	case entities.EventAudioChunk, entities.EventAudioResponse:
		// played, not printed
	case entities.EventError:
		fmt.Fprintf(w, "error: %s\n", event.Message)
	default:
		fmt.Fprintf(w, "[%s]\n", event.Type)
	}
}
