package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/smazurov/camlink/internal/camera"
	_ "github.com/smazurov/camlink/internal/camera/tcpcam"
	"github.com/smazurov/camlink/internal/config"
	camnats "github.com/smazurov/camlink/internal/nats"
)

// CreateControlCmd creates the control command. By default it dials the
// camera directly, issues one operation and hangs up. With --nats-url it
// instead publishes a control message for a running daemon to carry out.
func CreateControlCmd() *cobra.Command {
	var configFile string
	var natsURL string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "control <camera> <action> [value]",
		Short: "Send a control command to a camera",
		Long: `Issues a one-shot control operation against the named camera. ` +
			`Actions: led <on|off>, ir <on|off|auto>, reboot. ` +
			`With --nats-url the command is published over NATS instead of dialing directly.`,
		Args: cobra.RangeArgs(2, 3),
		Run: func(_ *cobra.Command, args []string) {
			cameraName := args[0]
			action := args[1]
			value := ""
			if len(args) == 3 {
				value = args[2]
			}

			switch action {
			case "led", "ir":
				if value == "" {
					fmt.Fprintf(os.Stderr, "action %q requires a value\n", action)
					os.Exit(1)
				}
			case "reboot":
			default:
				fmt.Fprintf(os.Stderr, "unknown action %q (want led, ir or reboot)\n", action)
				os.Exit(1)
			}

			var err error
			if natsURL != "" {
				err = controlViaNATS(natsURL, cameraName, action, value)
			} else {
				err = controlDirect(configFile, cameraName, action, value, timeout)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(1)
			}

			fmt.Printf("sent %s to %s\n", action, cameraName)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "camlink.toml", "Path to configuration file")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "Publish via NATS instead of dialing directly")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Dial and command timeout")

	return cmd
}

// controlDirect dials the camera, performs the operation and closes the
// connection.
func controlDirect(configFile, cameraName, action, value string, timeout time.Duration) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	cam, ok := cfg.Find(cameraName)
	if !ok {
		return fmt.Errorf("camera %q not found in %s", cameraName, configFile)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := camera.Dial(ctx, cam)
	if err != nil {
		return fmt.Errorf("dial %s failed: %w", cam.Address, err)
	}
	defer conn.Close()

	switch action {
	case "led":
		on, parseErr := strconv.ParseBool(normalizeSwitch(value))
		if parseErr != nil {
			return fmt.Errorf("led wants on or off, got %q", value)
		}
		return conn.SetStatusLED(ctx, on)
	case "ir":
		mode, parseErr := camera.ParseIRMode(value)
		if parseErr != nil {
			return parseErr
		}
		return conn.SetIRLights(ctx, mode)
	default:
		return conn.Reboot(ctx)
	}
}

// controlViaNATS publishes the command for a running daemon's bridge.
func controlViaNATS(natsURL, cameraName, action, value string) error {
	nc, err := natsgo.Connect(natsURL,
		natsgo.Name("camlink-control"),
		natsgo.Timeout(5*time.Second),
	)
	if err != nil {
		return fmt.Errorf("NATS connect failed: %w", err)
	}
	defer nc.Close()

	msg := camnats.ControlMessage{
		Action:    action,
		Value:     value,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	if err := nc.Publish(camnats.SubjectCameraControl(cameraName), data); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	if err := nc.Flush(); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	return nil
}

// normalizeSwitch maps on/off to strconv.ParseBool vocabulary.
func normalizeSwitch(v string) string {
	switch v {
	case "on":
		return "true"
	case "off":
		return "false"
	}
	return v
}
