package cmd

import (
	"fmt"

	"github.com/sergev/dumpfloppy/diskimage"
	"github.com/spf13/cobra"
)

var showData bool

var showCmd = &cobra.Command{
	Use:   "show IMAGE.imd",
	Short: "List the contents of an ImageDisk file",
	Long: `Print the comment of the image and the layout of every track.
Sectors are marked '+' when good, '?' when bad, '.' when missing
and 'x' when deleted.`,
	Args:             cobra.ExactArgs(1),
	PersistentPreRun: skipConfig,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := diskimage.Read(args[0])
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to read file %s: %w", args[0], err))
		}
		d.Show(cmd.OutOrStdout(), showData)
	},
}

func init() {
	showCmd.Flags().BoolVar(&showData, "data", false, "dump sector contents")
	rootCmd.AddCommand(showCmd)
}
