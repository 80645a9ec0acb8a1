package cmd

import (
	"fmt"

	"github.com/sergev/dumpfloppy/diskimage"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert SRC.imd DEST.EXT",
	Short: "Convert between image formats",
	Long: `Convert between image formats.
Reads contents of the SRC.imd file and writes it to DEST.EXT file.
Format of the destination is defined by extension.
Supported image formats:
    *.imd          - Dave Dunfield's ImageDisk utility
    *.img or *.ima - raw binary contents of the entire disk`,
	Args:             cobra.ExactArgs(2),
	PersistentPreRun: skipConfig,
	Run: func(cmd *cobra.Command, args []string) {
		srcFilename := args[0]
		destFilename := args[1]

		d, err := diskimage.Read(srcFilename)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to read file %s: %w", srcFilename, err))
		}
		if err := diskimage.Write(destFilename, d); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to write file %s: %w", destFilename, err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully converted %s to %s\n", srcFilename, destFilename)
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
}
