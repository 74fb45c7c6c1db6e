package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/openvas-reporter/internal/subnet"
)

var subnetListHosts bool

// subnetCmd represents the subnet command.
var subnetCmd = &cobra.Command{
	Use:   "subnet",
	Short: "Show the local subnet a run would scan",
	Long: `Discover the IPv4 network of the first non-loopback interface and print it
together with the number of host addresses a report run would put in its scan
target. Nothing is sent to gvmd.`,
	Example: `  openvas-reporter subnet
  openvas-reporter subnet --hosts`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return showSubnet(cmd.Context(), cmd.OutOrStdout(), subnet.SystemLister{}, cfg.Scan.MaxPrefixBits, subnetListHosts)
	},
}

func init() {
	rootCmd.AddCommand(subnetCmd)

	subnetCmd.Flags().BoolVar(&subnetListHosts, "hosts", false, "also print every host address")
}

// showSubnet prints the discovered network and, if listHosts is set, its hosts.
// A network larger than maxPrefixBits allows is reported as an error.
func showSubnet(ctx context.Context, w io.Writer, lister subnet.Lister, maxPrefixBits int, listHosts bool) error {
	network, err := subnet.Discover(ctx, lister)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Interface", "Address", "Netmask", "Network", "Hosts")
	if err := table.Append([]string{
		network.Interface,
		network.Address.String(),
		network.Netmask,
		network.CIDR(),
		fmt.Sprintf("%d", network.Size()),
	}); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if err := subnet.CheckSize(network.Prefix, maxPrefixBits); err != nil {
		return err
	}

	if listHosts {
		for addr := range subnet.Addresses(network.Prefix) {
			fmt.Fprintln(w, addr)
		}
	}
	return nil
}
