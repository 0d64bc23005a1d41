package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/danmuck/stompctl/internal/client"
	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/danmuck/stompctl/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func listenCmd(flags *rootFlags) *cobra.Command {
	var (
		dump  bool
		admin bool
	)

	cmd := &cobra.Command{
		Use:   "listen [destination...]",
		Short: "Subscribe and print incoming messages",
		Long: `Subscribe to every destination given on the command line or listed in the
config file and print each MESSAGE until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, flags)
			if err != nil {
				return err
			}
			topics := append(append([]string(nil), cfg.Subscriptions...), args...)
			if len(topics) == 0 {
				return errors.New("no destinations to listen on")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ccfg := cfg.Client()
			ccfg.OnError = func(f frame.Frame) {
				fmt.Fprintf(os.Stderr, "broker error: %s\n", f.Header(frame.HeaderMessage))
			}
			c, err := client.New(ccfg)
			if err != nil {
				return err
			}

			printer := &messagePrinter{out: cmd.OutOrStdout(), dump: dump}
			for _, topic := range topics {
				c.Subscribe(topic, client.ObserverFunc(printer.print))
			}
			if err := c.Start(ctx); err != nil {
				return err
			}
			defer c.Stop()

			if admin {
				srv := server.NewAdmin("stompctl", cfg.Admin.Addr, c, cfg.Admin.CorsOrigins)
				go func() {
					if err := srv.Serve(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Msg("stompctl admin server")
					}
				}()
			}

			<-ctx.Done()
			log.Info().Interface("stats", c.Statistics()).Msg("stompctl listen stopping")
			return nil
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "print full frames instead of bodies")
	cmd.Flags().BoolVar(&admin, "admin", false, "serve /health, /ready and /metrics on the admin address")

	return cmd
}

// messagePrinter serializes output from the actor goroutine.
type messagePrinter struct {
	mu   sync.Mutex
	out  io.Writer
	dump bool
}

func (p *messagePrinter) print(f frame.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dump {
		frame.Dump(p.out, f, true)
		return
	}
	fmt.Fprintf(p.out, "%s\t%s\n", f.Header(frame.HeaderDestination), f.Body)
}
