// Command display is a terminal encounter display. It attaches to a display
// window the control session has opened and redraws on every update.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/DoyleJ11/initiative-tracker/internal/channel"
	"github.com/DoyleJ11/initiative-tracker/internal/config"
	"github.com/DoyleJ11/initiative-tracker/internal/displaywin"
	"github.com/DoyleJ11/initiative-tracker/internal/logging"
	"github.com/DoyleJ11/initiative-tracker/internal/syncdisplay"
	"github.com/DoyleJ11/initiative-tracker/internal/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	server := flag.String("server", cfg.ServerURL, "tracker server URL")
	encounterID := flag.String("encounter", "", "encounter id to display")
	name := flag.String("window", displaywin.WindowName, "display window name")
	clearScreen := flag.Bool("clear", true, "clear the terminal between frames")
	flag.Parse()
	if *encounterID == "" {
		return fmt.Errorf("-encounter is required")
	}

	// Logs go to stderr so they do not interleave with frames.
	logger, err := logging.New("console", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ws.Dial(ctx, *server, *encounterID, *name, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	var out io.Writer = os.Stdout
	if *clearScreen {
		out = clearingWriter{w: os.Stdout}
	}
	link := channel.NewLink(logger)
	display := syncdisplay.New(link, client, syncdisplay.Options{
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		Renderer:   syncdisplay.NewTextRenderer(out),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(gctx, link.Receive) })

	display.Mount()
	defer display.Unmount()
	logger.Info("display attached", zap.String("encounter", *encounterID))

	return g.Wait()
}

// clearingWriter clears the screen before each frame.
type clearingWriter struct{ w io.Writer }

func (c clearingWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(c.w, "\033[H\033[2J"); err != nil {
		return 0, err
	}
	return c.w.Write(p)
}
