package cmd

import (
	"fmt"

	"github.com/sergev/dumpfloppy/config"
	"github.com/sergev/dumpfloppy/fdc"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the floppy controller",
	Long:  "Show the selected drive profile and check the floppy controller it names.",
	Run: func(cmd *cobra.Command, args []string) {
		p := config.Drive
		fmt.Printf("Configuration file: %s\n", config.Path)
		fmt.Printf("Floppy Drive: %s\n", p.Name)
		fmt.Printf("Adapter: %s, unit %d\n", p.Adapter, p.Unit)
		if p.Tracks > 0 {
			fmt.Printf("Geometry: %d tracks\n", p.Tracks)
		} else {
			fmt.Printf("Geometry: from the drive\n")
		}
		fmt.Printf("Retries: %d\n", p.Retries)
		fmt.Printf("\n")

		ctl, err := fdc.Open(p.Adapter, fdc.Options{
			Drive:    p.Unit,
			Port:     p.Port,
			Firmware: p.Firmware,
			Debug:    debugFlag,
		})
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to open %s adapter: %w", p.Adapter, err))
		}
		defer ctl.Close()

		if sp, ok := ctl.(fdc.StatusPrinter); ok {
			sp.PrintStatus()
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
