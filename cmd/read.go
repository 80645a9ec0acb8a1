package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sergev/dumpfloppy/config"
	"github.com/sergev/dumpfloppy/disk"
	"github.com/sergev/dumpfloppy/diskimage"
	"github.com/sergev/dumpfloppy/dumper"
	"github.com/sergev/dumpfloppy/fdc"
	"github.com/spf13/cobra"
)

// defaultTracks is used when neither the configuration nor the drive
// tell the number of cylinders.
const defaultTracks = 80

var readFlags struct {
	alwaysProbe bool
	drive       int
	tracks      int
	adapter     string
	port        string
	firmware    string
	retries     int
}

var readCmd = &cobra.Command{
	Use:   "read [IMAGE.imd]",
	Short: "Read the floppy disk into an ImageDisk file",
	Long: `Probe the format of the floppy disk and read all its sectors.
The result is saved to IMAGE.imd if given; otherwise the disk is only read.
Settings default to the selected profile of the configuration file.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		profile := readProfile(cmd)

		filename := ""
		if len(args) > 0 {
			filename = args[0]
			if diskimage.DetectImageFormat(filename) != diskimage.ImageFormatIMD {
				cobra.CheckErr(fmt.Errorf("image file must have .imd extension: %s", filename))
			}
		}

		ctl, err := fdc.Open(profile.Adapter, fdc.Options{
			Drive:    profile.Unit,
			Port:     profile.Port,
			Firmware: profile.Firmware,
			Debug:    debugFlag,
		})
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to open %s adapter: %w", profile.Adapter, err))
		}
		err = dump(ctl, profile, filename)
		ctl.Close()
		cobra.CheckErr(err)
	},
}

// readProfile returns the configured profile with command line flags applied.
func readProfile(cmd *cobra.Command) config.Profile {
	p := config.Drive
	flags := cmd.Flags()
	if flags.Changed("always-probe") {
		p.AlwaysProbe = readFlags.alwaysProbe
	}
	if flags.Changed("drive") {
		p.Unit = readFlags.drive
	}
	if flags.Changed("tracks") {
		p.Tracks = readFlags.tracks
	}
	if flags.Changed("adapter") {
		p.Adapter = readFlags.adapter
	}
	if flags.Changed("port") {
		p.Port = readFlags.port
	}
	if flags.Changed("firmware") {
		p.Firmware = readFlags.firmware
	}
	if flags.Changed("retries") {
		p.Retries = readFlags.retries
	}
	return p
}

// dump reads the whole disk through ctl, writing each track to the image
// as soon as it is complete.
func dump(ctl fdc.Controller, profile config.Profile, filename string) error {
	tracks := profile.Tracks
	if tracks == 0 {
		tracks = defaultTracks
		if tc, ok := ctl.(fdc.TrackCounter); ok {
			if n, err := tc.Tracks(); err == nil {
				tracks = n
			}
		}
	}

	d := disk.New()
	if err := d.SetGeometry(tracks, 2); err != nil {
		return err
	}
	d.Comment = disk.MakeComment("dumpfloppy", Version, time.Now())

	s := dumper.NewSession(ctl, dumper.Options{
		Drive:       profile.Unit,
		AlwaysProbe: profile.AlwaysProbe,
		MaxTries:    profile.Retries,
	}, os.Stdout)
	if err := s.ProbeDisk(d); err != nil {
		return err
	}

	if filename == "" {
		return s.ReadDisk(d, nil)
	}
	w, err := diskimage.CreateIMD(filename, d.Comment)
	if err != nil {
		return err
	}
	if err := s.ReadDisk(d, w); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Printf("Image saved to file '%s'.\n", filename)
	return nil
}

func init() {
	flags := readCmd.Flags()
	flags.BoolVarP(&readFlags.alwaysProbe, "always-probe", "a", false, "don't guess the layout of a track from the previous cylinder")
	flags.IntVarP(&readFlags.drive, "drive", "d", 0, "drive unit to read from")
	flags.IntVarP(&readFlags.tracks, "tracks", "t", 0, "number of cylinders the drive has")
	flags.StringVar(&readFlags.adapter, "adapter", "", fmt.Sprintf("controller to use (%v)", fdc.Adapters()))
	flags.StringVar(&readFlags.port, "port", "", "serial port of a USB adapter")
	flags.StringVar(&readFlags.firmware, "firmware", "", "firmware image for a KryoFlux")
	flags.IntVar(&readFlags.retries, "retries", dumper.DefaultRetries, "attempts per track")
	rootCmd.AddCommand(readCmd)
}
