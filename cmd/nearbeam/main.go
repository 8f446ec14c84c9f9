package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/nearbeam/nearbeam/internal/util"
	"github.com/nearbeam/nearbeam/pkg/peer"
	"github.com/nearbeam/nearbeam/pkg/session"
	"github.com/nearbeam/nearbeam/pkg/transport/radio"
	"github.com/nearbeam/nearbeam/pkg/transport/wlan"
	"github.com/nearbeam/nearbeam/pkg/ui"
)

func main() {
	f, _ := os.OpenFile("debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close log file", "error", err)
		}
	}()
	log.SetOutput(f)
	slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))

	var (
		name   string
		medium string
	)

	cmd := &cobra.Command{
		Use:   "nearbeam",
		Short: "Peer-to-peer file transfer over short-range wireless transports",
	}
	cmd.PersistentFlags().StringVar(&name, "name", defaultDeviceName(), "Display name announced to peers")
	cmd.PersistentFlags().StringVar(&medium, "medium", "auto", "Transfer medium: auto, radio, or wlan")

	sendCmd := &cobra.Command{
		Use:   "send [file]...",
		Short: "Discover a nearby receiver and send files to it",
		Long:  "Discover a nearby receiver and send files to it.\nWithout arguments an interactive file picker is shown first.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := peer.ParseKind(medium)
			if err != nil {
				return err
			}
			model := ui.InitialModel(ui.Sender, newCoordinator(name), args, "", kind)
			_, err = tea.NewProgram(model).Run()
			return err
		},
	}

	var dest string
	receiveCmd := &cobra.Command{
		Use:   "receive",
		Short: "Announce this device and receive incoming files",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := peer.ParseKind(medium)
			if err != nil {
				return err
			}
			if err := ensureDestDir(dest); err != nil {
				return err
			}
			model := ui.InitialModel(ui.Receiver, newCoordinator(name), nil, dest, kind)
			_, err = tea.NewProgram(model).Run()
			return err
		},
	}
	receiveCmd.Flags().StringVar(&dest, "dest", defaultDownloadDir(), "Directory incoming files are written to")

	cmd.AddCommand(sendCmd)
	cmd.AddCommand(receiveCmd)

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

func newCoordinator(name string) *session.Coordinator {
	return session.New(
		wlan.New(wlan.WithDisplayName(name)),
		radio.New(radio.WithDisplayName(name)),
	)
}

func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "nearbeam device"
	}
	return host
}

// defaultDownloadDir is the well-known shared downloads location.
func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

func ensureDestDir(dest string) error {
	exists, isDir, err := util.CheckDirectory(dest)
	if err != nil {
		return fmt.Errorf("failed to inspect destination %s: %w", dest, err)
	}
	if exists && !isDir {
		return fmt.Errorf("destination %s is not a directory", dest)
	}
	if !exists {
		if err := os.MkdirAll(dest, 0755); err != nil {
			return fmt.Errorf("failed to create destination %s: %w", dest, err)
		}
	}
	return nil
}
