// Command box3ctl is an operator tool for the box3 delivery service: it
// computes distances and map links, fetches routes, summarizes order dumps
// and mints viewer tokens for testing.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/box3-delivery/internal/geo"
	httpapi "github.com/example/box3-delivery/internal/http"
	"github.com/example/box3-delivery/internal/mapslink"
	"github.com/example/box3-delivery/internal/models"
	"github.com/example/box3-delivery/internal/route"
	"github.com/example/box3-delivery/internal/stats"
	"github.com/example/box3-delivery/internal/status"
)

const defaultOSRMEndpoint = "https://router.project-osrm.org"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "box3ctl",
		Short:        "Operator tool for the box3 delivery service",
		SilenceUsage: true,
	}
	root.AddCommand(newDistanceCmd(), newMapsLinkCmd(), newRouteCmd(), newStatsCmd(), newTokenCmd())
	return root
}

// pointFlags registers --<prefix>-lat and --<prefix>-lon.
func pointFlags(cmd *cobra.Command, prefix string, c *models.Coord) {
	cmd.Flags().Float64Var(&c.Lat, prefix+"-lat", 0, prefix+" latitude")
	cmd.Flags().Float64Var(&c.Lon, prefix+"-lon", 0, prefix+" longitude")
}

func newDistanceCmd() *cobra.Command {
	var from, to models.Coord
	cmd := &cobra.Command{
		Use:   "distance",
		Short: "Great-circle distance between two points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), geo.EstimateBetween(from, to).String())
			return err
		},
	}
	pointFlags(cmd, "from", &from)
	pointFlags(cmd, "to", &to)
	return cmd
}

func newMapsLinkCmd() *cobra.Command {
	var from, to models.Coord
	var mode string
	cmd := &cobra.Command{
		Use:   "maps-link",
		Short: "Directions deep link for an external map app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, ok := mapslink.ParseMode(mode)
			if !ok {
				return fmt.Errorf("unknown travel mode %q", mode)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), mapslink.BuildURL(from.Lat, from.Lon, to.Lat, to.Lon, m))
			return err
		},
	}
	pointFlags(cmd, "from", &from)
	pointFlags(cmd, "to", &to)
	cmd.Flags().StringVar(&mode, "mode", string(mapslink.Driving), "driving, walking, bicycling or transit")
	return cmd
}

func newRouteCmd() *cobra.Command {
	var from, to models.Coord
	var provider, endpoint, token string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Fetch a driving route from the directions provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if from.IsUnknown() {
				return geo.ErrLocationUnavailable
			}
			var f route.Fetcher
			switch provider {
			case "mapbox":
				f = route.NewMapboxClient(endpoint, token, timeout)
			case "osrm":
				if endpoint == "" {
					endpoint = defaultOSRMEndpoint
				}
				f = route.NewOSRMClient(endpoint, timeout)
			default:
				return fmt.Errorf("unknown provider %q", provider)
			}
			rs, err := f.Fetch(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rs)
		},
	}
	pointFlags(cmd, "from", &from)
	pointFlags(cmd, "to", &to)
	cmd.Flags().StringVar(&provider, "provider", "osrm", "mapbox or osrm")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "provider base URL")
	cmd.Flags().StringVar(&token, "token", os.Getenv("MAPBOX_TOKEN"), "mapbox access token")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [orders.json]",
		Short: "Summarize a JSON array of orders (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var orders []models.Order
			if err := json.NewDecoder(in).Decode(&orders); err != nil {
				return fmt.Errorf("decode orders: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, o := range orders {
				st := status.Of(o)
				line := fmt.Sprintf("#%d\t%s\t%.2f", o.ID, st.Label, o.DeliveryFees)
				if st.Anomaly {
					line += "\tANOMALY: released before delivery"
				}
				fmt.Fprintln(out, line)
			}
			s := stats.Aggregate(orders)
			_, err := fmt.Fprintf(out, "total=%d in_transit=%d delivered=%d completed=%d value=%.2f\n",
				s.Total, s.InTransit, s.Delivered, s.Completed, s.TotalValue)
			return err
		},
	}
}

func newTokenCmd() *cobra.Command {
	var secret, issuer, wallet, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a viewer token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := models.Role(role)
			if r != models.RoleCustomer && r != models.RoleAgent {
				return fmt.Errorf("role must be customer or agent, got %q", role)
			}
			if secret == "" || wallet == "" {
				return fmt.Errorf("--secret and --wallet are required")
			}
			tok, err := httpapi.ViewerAuth{Secret: []byte(secret), Issuer: issuer}.Sign(models.Viewer{Account: wallet, Role: r}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HS256 signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", "box3", "token issuer")
	cmd.Flags().StringVar(&wallet, "wallet", "", "wallet address")
	cmd.Flags().StringVar(&role, "role", string(models.RoleCustomer), "customer or agent")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
