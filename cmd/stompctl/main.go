package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/stompctl/internal/config"
	"github.com/danmuck/stompctl/internal/observability"
	"github.com/danmuck/stompctl/internal/protocol/session"
	"github.com/spf13/cobra"
)

// rootFlags are shared by every subcommand; set flags override the file.
type rootFlags struct {
	configPath string
	host       string
	port       int
	transport  string
	ackMode    string
}

func main() {
	var flags rootFlags
	rootCmd := &cobra.Command{
		Use:   "stompctl",
		Short: "STOMP 1.1 client for brokers speaking TCP or websocket",
		Long: `stompctl connects to a STOMP broker, keeps the session alive with
heartbeats and reconnects, and exposes listen and send workflows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			observability.InitLogger("stompctl")
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "TOML config file")
	pf.StringVar(&flags.host, "host", "", "broker host")
	pf.IntVar(&flags.port, "port", 0, "broker port")
	pf.StringVar(&flags.transport, "transport", "", "tcp or websocket")
	pf.StringVar(&flags.ackMode, "ack", "", "auto, client or client-individual")

	rootCmd.AddCommand(
		listenCmd(&flags),
		sendCmd(&flags),
		configCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stompctl: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfig(cmd *cobra.Command, flags *rootFlags) (config.ClientConfig, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return config.ClientConfig{}, err
		}
		cfg = loaded
	}

	pf := cmd.Flags()
	if pf.Changed("host") {
		cfg.Host = strings.TrimSpace(flags.host)
	}
	if pf.Changed("port") {
		cfg.Port = flags.port
	}
	if pf.Changed("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(flags.transport))
	}
	if pf.Changed("ack") {
		mode, err := session.ParseAckMode(flags.ackMode)
		if err != nil {
			return config.ClientConfig{}, err
		}
		cfg.Session.AckMode = mode
	}
	if err := config.Validate(cfg); err != nil {
		return config.ClientConfig{}, err
	}
	return cfg, nil
}
