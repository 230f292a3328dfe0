package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camlink/internal/camera"
	_ "github.com/smazurov/camlink/internal/camera/tcpcam"
	"github.com/smazurov/camlink/internal/config"
)

// CreateCheckCmd creates the check-config command.
func CreateCheckCmd() *cobra.Command {
	var configFile string
	var probe bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the camera configuration file",
		Long: `Loads the configuration file, validates every camera entry and prints a ` +
			`summary. With --probe each camera is dialed once to verify it is reachable. ` +
			`Exits non-zero when the file cannot be parsed, any camera fails validation, ` +
			`or a probed camera is unreachable.`,
		Run: func(_ *cobra.Command, _ []string) {
			cfg, err := config.Load(configFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "config error: %v\n", err)
				os.Exit(1)
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("%s: %d camera(s) configured\n", configFile, len(cfg.Cameras))
			failed := 0
			for _, cam := range cfg.Cameras {
				policy := "lossy"
				if cam.Strict {
					policy = "strict"
				}
				fmt.Printf("  %-20s %s (%s, %s)\n", cam.Name, cam.Address, cam.Scheme(), policy)

				if !probe {
					continue
				}
				if probeErr := probeCamera(cam, timeout); probeErr != nil {
					fmt.Printf("    probe failed: %v\n", probeErr)
					failed++
				} else {
					fmt.Printf("    probe ok\n")
				}
			}
			if failed > 0 {
				fmt.Fprintf(os.Stderr, "%d camera(s) unreachable\n", failed)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "camlink.toml", "Path to configuration file")
	cmd.Flags().BoolVar(&probe, "probe", false, "Dial each camera once to verify reachability")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-camera probe timeout")

	return cmd
}

// probeCamera dials once and hangs up.
func probeCamera(cam config.Camera, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := camera.Dial(ctx, cam)
	if err != nil {
		return err
	}
	return conn.Close()
}
