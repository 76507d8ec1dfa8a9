package cmd

import (
	"fmt"
	"runtime"

	"github.com/duocaplab/duocap/internal/capture"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio capture devices",
	Long: `List the capture devices the selected backend can open, marking
monitor/loopback endpoints that mirror the system's output audio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := capture.NewBackend(cfg.Audio.Backend)
		if err != nil {
			return fmt.Errorf("failed to initialize audio backend: %w", err)
		}
		defer backend.Close()

		devices, err := backend.ListDevices()
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}

		fmt.Printf("🎵 Audio Capture Devices (%s, backend: %s)\n", runtime.GOOS, backend.Type())
		fmt.Printf("═══════════════════════════════════════\n\n")

		fmt.Printf("📋 MICROPHONE CANDIDATES:\n")
		for _, d := range devices {
			if d.Monitor {
				continue
			}
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Printf("  %s %s  (id: %s)\n", marker, d.Name, d.ID)
		}

		fmt.Printf("\n📋 SYSTEM OUTPUT (monitor/loopback) CANDIDATES:\n")
		found := false
		for _, d := range devices {
			if !d.Monitor {
				continue
			}
			found = true
			fmt.Printf("    %s  (id: %s)\n", d.Name, d.ID)
		}
		if !found {
			fmt.Printf("    none found — enable a monitor source for your output sink\n")
		}

		fmt.Printf("\n💡 Usage:\n")
		fmt.Printf("  duocap record --mic <id> --system <id>\n")
		fmt.Printf("  or set audio.mic_device / audio.system_device in the config file\n\n")
		return nil
	},
}
