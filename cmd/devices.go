package main

import (
	"github.com/spf13/cobra"

	"github.com/cwbudde/clhost/internal/report"
)

var showDetails bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List compute devices",
	Long:  `Lists the devices of the selected backend and, with --details, their full capability records.`,
	RunE:  runDevices,
}

func init() {
	devicesCmd.Flags().BoolVar(&showDetails, "details", false, "Print every device capability")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	p, err := openPlatform()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := report.Platform(out, p); err != nil {
		return err
	}
	if !showDetails {
		return nil
	}
	for _, dev := range p.Devices() {
		if err := report.Device(out, dev); err != nil {
			return err
		}
	}
	return nil
}
