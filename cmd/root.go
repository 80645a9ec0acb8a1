// Package cmd implements the dumpfloppy command line.
package cmd

import (
	"fmt"

	"github.com/sergev/dumpfloppy/config"
	"github.com/spf13/cobra"

	// Controllers register themselves with the fdc package.
	_ "github.com/sergev/dumpfloppy/greaseweazle"
	_ "github.com/sergev/dumpfloppy/kryoflux"
	_ "github.com/sergev/dumpfloppy/supercardpro"
)

// Version is recorded in the comment of every image written.
var Version = "1.0"

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:     "dumpfloppy",
	Short:   "Read floppy disks of unknown format into ImageDisk files",
	Long:    "The dumpfloppy tool discovers the format of a floppy disk and saves its sectors as an ImageDisk image.",
	Version: Version,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := config.Initialize(); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to initialize config: %w", err))
		}
	},
}

// skipConfig replaces the config loading of the root command for commands
// that work on image files only.
func skipConfig(cmd *cobra.Command, args []string) {}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "trace controller commands")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
