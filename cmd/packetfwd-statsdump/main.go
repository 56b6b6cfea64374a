// packetfwd-statsdump inspects the forwarder's stats-log database.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agsys/packetfwd/internal/statslog"
)

var (
	dbPath  string
	limit   int
	rootCmd = &cobra.Command{
		Use:   "packetfwd-statsdump",
		Short: "packetfwd stats-log CLI",
		Long:  "Command-line tool for inspecting the packetfwd stats-window history database.",
	}

	windowsCmd = &cobra.Command{
		Use:   "windows",
		Short: "List recent stats windows",
		RunE:  listWindows,
	}

	scansCmd = &cobra.Command{
		Use:   "scans",
		Short: "List recent spectral scans",
		RunE:  listScans,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "/var/lib/packetfwd/stats.db", "Path to the stats-log database")
	rootCmd.PersistentFlags().IntVarP(&limit, "limit", "n", 20, "Number of rows to show")
	rootCmd.AddCommand(windowsCmd)
	rootCmd.AddCommand(scansCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDB() (*statslog.DB, error) {
	return statslog.Open(dbPath)
}

func listWindows(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	windows, err := db.RecentWindows(limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORDED AT\tRX\tOK\tBAD\tFWD\tTX OK\tTX FAIL\tPULLS\tACKED\tBEACONS\tACK%")
	fmt.Fprintln(w, "-----------\t--\t--\t---\t---\t-----\t-------\t-----\t-----\t-------\t----")
	for _, win := range windows {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%.1f\n",
			win.RecordedAt.Format("2006-01-02 15:04:05"),
			win.RXReceived, win.RXOK, win.RXBad, win.RXForwarded,
			win.TXOK, win.TXFail, win.PullsSent, win.PullsAcked,
			win.BeaconsSent, win.AckRate)
	}
	return w.Flush()
}

func listScans(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	scans, err := db.RecentScans(limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORDED AT\tSCAN ID\tCHAIN\tFREQ HZ")
	fmt.Fprintln(w, "-----------\t-------\t-----\t-------")
	for _, s := range scans {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n",
			s.RecordedAt.Format("2006-01-02 15:04:05"), s.ScanID, s.RFChain, s.FreqHz)
	}
	return w.Flush()
}
