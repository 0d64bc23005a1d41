package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/stompctl/internal/client"
	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/spf13/cobra"
)

func sendCmd(flags *rootFlags) *cobra.Command {
	var (
		headers []string
		receipt bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <destination> [body]",
		Short: "Send one message",
		Long: `Send a single message to a destination. The body is read from stdin when
it is not given as an argument.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, flags)
			if err != nil {
				return err
			}
			h, err := parseHeaders(headers)
			if err != nil {
				return err
			}
			body, err := readBody(cmd, args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			c, err := client.New(cfg.Client())
			if err != nil {
				return err
			}

			done := make(chan frame.Frame, 1)
			var queued bool
			if receipt {
				queued = c.SendWithReceipt(args[0], h, body, func(f frame.Frame) { done <- f })
			} else {
				queued = c.Send(args[0], h, body)
			}
			if !queued {
				return errors.New("message rejected")
			}
			if err := c.Start(ctx); err != nil {
				return err
			}
			defer c.Stop()

			if receipt {
				select {
				case f := <-done:
					fmt.Fprintf(cmd.OutOrStdout(), "receipt %s\n", f.Header(frame.HeaderReceiptID))
					return nil
				case <-ctx.Done():
					return fmt.Errorf("waiting for receipt: %w", ctx.Err())
				}
			}
			return waitConnected(ctx, c)
		},
	}

	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header as key=value (repeatable)")
	cmd.Flags().BoolVar(&receipt, "receipt", false, "request a receipt and wait for it")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long")

	return cmd
}

// waitConnected returns once the handshake completes; Stop then flushes the
// queue ahead of DISCONNECT.
func waitConnected(ctx context.Context, c *client.Client) error {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for !c.Connected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for broker: %w", ctx.Err())
		case <-tick.C:
		}
	}
	return nil
}

func parseHeaders(raw []string) (frame.Headers, error) {
	var out frame.Headers
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("header %q: want key=value", kv)
		}
		out.Set(key, value)
	}
	return out, nil
}

func readBody(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 2 {
		return []byte(args[1]), nil
	}
	return io.ReadAll(cmd.InOrStdin())
}
