// hrm is a real-time PPG heart rate and HRV monitor.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/itohio/gopulse/pkg/config"
	"github.com/itohio/gopulse/pkg/display"
	"github.com/itohio/gopulse/pkg/ppg"
	"github.com/itohio/gopulse/pkg/store"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type runFlags struct {
	port      string
	mock      bool
	storage   string
	storePath string
	natsURL   string
	wsAddr    string
	headless  bool
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "hrm",
		Short:        "Real-time heart rate and HRV monitor",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Configuration file path")

	root.AddCommand(
		newRunCmd(&configPath),
		newHistoryCmd(&configPath),
		newPortsCmd(),
		newConfigCmd(&configPath),
	)
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Acquire the pulse waveform and drive the menu",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			f.apply(cfg)
			return run(cmd.Context(), cfg, f)
		},
	}

	cmd.Flags().StringVarP(&f.port, "port", "p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
	cmd.Flags().BoolVar(&f.mock, "mock", false, "Use a simulated sensor instead of the serial port")
	cmd.Flags().StringVar(&f.storage, "store", "", "Storage backend override (file or sqlite)")
	cmd.Flags().StringVar(&f.storePath, "store-path", "", "Storage path override")
	cmd.Flags().StringVar(&f.natsURL, "nats", "", "Publish results to this NATS server")
	cmd.Flags().StringVar(&f.wsAddr, "ws", "", "Serve the live view over websocket on this address (e.g., :8080)")
	cmd.Flags().BoolVar(&f.headless, "headless", false, "Run without the terminal UI")
	return cmd
}

// apply overrides configuration values with command line flags.
func (f runFlags) apply(cfg *config.Config) {
	if f.port != "" {
		cfg.Serial.Port = f.port
	}
	if f.storage != "" {
		cfg.Storage.Backend = f.storage
	}
	if f.storePath != "" {
		cfg.Storage.Path = f.storePath
	}
	if f.natsURL != "" {
		cfg.Publish.Enabled = true
		cfg.Publish.URL = f.natsURL
	}
	if f.wsAddr != "" {
		cfg.Display.WebSocketAddr = f.wsAddr
	}
}

func run(ctx context.Context, cfg *config.Config, f runFlags) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !f.headless && cfg.Display.LogFile != "" {
		logFile, err := tea.LogToFile(cfg.Display.LogFile, "hrm")
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
	}

	var device ppg.Device
	if f.mock {
		device = ppg.NewMock(&cfg.Mock, cfg.Sampling.RateHz)
	} else {
		device = ppg.NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate)
	}

	a, err := newApp(cfg, device)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	if err := a.start(); err != nil {
		return err
	}

	var extra display.Display
	if cfg.Display.WebSocketAddr != "" {
		hub := display.NewHub(a.monitor.Stats)
		extra = hub
		go func() {
			if err := hub.Serve(ctx, cfg.Display.WebSocketAddr); err != nil {
				log.Printf("Live view: %v", err)
			}
		}()
	}

	if f.headless {
		return runHeadless(ctx, a, extra, cfg.Display.RefreshInterval)
	}

	model := display.NewModel(ctx, a, display.NewTerminal(), extra,
		cfg.Display.RefreshInterval, cfg.Display.ConfirmDebounce)
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("terminal UI: %w", err)
	}
	return nil
}

// runHeadless drives the main loop from a ticker and keeps the session
// running on the heart rate page.
func runHeadless(ctx context.Context, a *app, out display.Display, interval time.Duration) error {
	a.Confirm(ctx) // Main -> Measure HR

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		v := a.Step(ctx)
		if out != nil {
			if err := out.Render(v); err != nil {
				log.Printf("Render failed: %v", err)
			}
		}
	}
}

func newHistoryCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored HRV results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			st, err := store.Open(cfg.Storage)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if sql, ok := st.(*store.SQLStore); ok && limit > 1 {
				snaps, err := sql.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				for _, s := range snaps {
					fmt.Fprintf(out, "%s  %s\n", s.Time.Format(time.DateTime), s)
				}
				return nil
			}

			s, found, err := st.Load(cmd.Context())
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(out, "no data yet")
				return nil
			}
			fmt.Fprintf(out, "%s  %s\n", s.Time.Format(time.DateTime), s)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 1, "Number of results to show (sqlite backend)")
	return cmd
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := ppg.Ports()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p.Name)
			}
			return nil
		},
	}
}

func newConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Write the effective configuration to the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := cfg.Save(*configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", *configPath)
			return nil
		},
	}
}
