package app

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/roverhub/internal/hub"
	"github.com/autopeer-io/roverhub/internal/hub/model"
	"github.com/autopeer-io/roverhub/pkg/options"
)

const defaultServer = "http://127.0.0.1:5000"

type rootOptions struct {
	Server string
	Http   *options.HttpOptions
}

// NewRoverctlCommand returns the operator CLI for a running hub.
func NewRoverctlCommand() *cobra.Command {
	opts := &rootOptions{Server: defaultServer, Http: options.NewHttpOptions()}

	cmd := &cobra.Command{
		Use:           "roverctl",
		Short:         "Inspect and command rovers through a rover hub",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.Server, "server", "s", opts.Server, "Base URL of the rover hub.")
	cmd.PersistentFlags().DurationVar(&opts.Http.Timeout, "timeout", opts.Http.Timeout, "Timeout for each request.")

	cmd.AddCommand(
		newRoversCommand(opts),
		newStatsCommand(opts),
		newSendCommand(opts),
		newTelemetryCommand(opts),
		newCommandLogCommand(opts),
		newConnectionsCommand(opts),
	)
	return cmd
}

func (o *rootOptions) client() *client {
	return newClient(o.Server, o.Http.Timeout)
}

func newRoversCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "rovers", Short: "List or show rovers"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every known rover",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rovers []model.Rover
			if err := opts.client().get(cmd.Context(), "/api/rovers", &rovers); err != nil {
				return err
			}
			printRovers(cmd.OutOrStdout(), rovers...)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get ROVER_ID",
		Short: "Show one rover",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var rover model.Rover
			if err := opts.client().get(cmd.Context(), fmt.Sprintf("/api/rovers/%d", id), &rover); err != nil {
				return err
			}
			printRovers(cmd.OutOrStdout(), rover)
			return nil
		},
	})
	return cmd
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show fleet counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var stats model.RoverStats
			if err := opts.client().get(cmd.Context(), "/api/stats", &stats); err != nil {
				return err
			}
			table := uitable.New()
			table.AddRow("TOTAL", "CONNECTED", "ACTIVE", "ERROR")
			table.AddRow(stats.TotalRovers, stats.ConnectedRovers, stats.ActiveRovers, stats.ErrorRovers)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func newSendCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send ROVER_ID COMMAND...",
		Short: "Send a command to a connected rover",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var reply struct {
				Message   string `json:"message"`
				CommandID int64  `json:"commandId"`
			}
			req := map[string]string{"command": strings.Join(args[1:], " ")}
			if err := opts.client().post(cmd.Context(), fmt.Sprintf("/api/rovers/%d/command", id), req, &reply); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (command %d)\n", reply.Message, reply.CommandID)
			return nil
		},
	}
}

func newTelemetryCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "telemetry ROVER_ID",
		Short: "Show recent telemetry samples, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var samples []model.TelemetrySample
			path := fmt.Sprintf("/api/rovers/%d/sensor-data?limit=%d", id, limit)
			if err := opts.client().get(cmd.Context(), path, &samples); err != nil {
				return err
			}

			table := uitable.New()
			table.AddRow("TIME", "BATTERY", "TEMP", "SPEED", "LAT", "LON")
			for _, s := range samples {
				table.AddRow(s.Timestamp.Format(time.RFC3339), intOrDash(s.BatteryLevel),
					floatOrDash(s.Temperature), floatOrDash(s.Speed), floatOrDash(s.Latitude), floatOrDash(s.Longitude))
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of samples.")
	return cmd
}

func newCommandLogCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "commands ROVER_ID",
		Short: "Show the command log of a rover, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var cmds []model.Command
			path := fmt.Sprintf("/api/rovers/%d/command-logs?limit=%d", id, limit)
			if err := opts.client().get(cmd.Context(), path, &cmds); err != nil {
				return err
			}

			table := uitable.New()
			table.MaxColWidth = 60
			table.AddRow("ID", "COMMAND", "STATUS", "RESPONSE", "TIME")
			for _, c := range cmds {
				table.AddRow(c.ID, c.Command, c.Status, c.Response, c.Timestamp.Format(time.RFC3339))
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of commands.")
	return cmd
}

func newConnectionsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List the sockets currently open on the hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var conns []hub.ConnectionInfo
			if err := opts.client().get(cmd.Context(), "/api/connections", &conns); err != nil {
				return err
			}
			table := uitable.New()
			table.AddRow("SOCKET", "ROLE", "ROVER", "REMOTE")
			for _, c := range conns {
				rover := "-"
				if c.RoverID > 0 {
					rover = fmt.Sprintf("%d (%s)", c.RoverID, c.RoverIdentifier)
				}
				table.AddRow(c.SocketID, c.Role, rover, c.RemoteAddr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func printRovers(w io.Writer, rovers ...model.Rover) {
	table := uitable.New()
	table.AddRow("ID", "IDENTIFIER", "NAME", "STATUS", "CONNECTED", "BATTERY", "LAST SEEN")
	for _, r := range rovers {
		lastSeen := "-"
		if !r.LastSeen.IsZero() {
			lastSeen = r.LastSeen.Format(time.RFC3339)
		}
		table.AddRow(r.ID, r.Identifier, r.Name, r.Status, r.Connected, r.BatteryLevel, lastSeen)
	}
	fmt.Fprintln(w, table)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid rover id %q", arg)
	}
	return id, nil
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func floatOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
