package flux

import "fmt"

// PrintStatus describes the adapter, then checks the drive and measures
// the rotation speed of the inserted disk.
func (c *Controller) PrintStatus() {
	if p, ok := c.drive.(InfoPrinter); ok {
		p.PrintInfo()
	}

	// Seek to track #0 to see whether the drive answers.
	c.track = nil
	if err := c.drive.Seek(0); err != nil {
		fmt.Printf("Floppy Drive: Not detected\n")
		return
	}
	c.cyl = 0
	fmt.Printf("Floppy Drive: Connected\n")

	if err := c.drive.SetHead(0); err != nil {
		return
	}
	_, revolution, err := c.drive.ReadRevolution()
	if err != nil && revolution == 0 {
		fmt.Printf("Floppy Disk: Not inserted\n")
		return
	}
	fmt.Printf("Floppy Disk: Inserted\n")
	if rpm := RotationRPM(revolution); rpm > 0 {
		fmt.Printf("Rotation Speed: %d RPM\n", rpm)
	}
}

// RotationRPM rounds the speed of a revolution to 300 or 360 RPM.
// It returns 0 for an unknown duration.
func RotationRPM(revolutionNs uint64) int {
	if revolutionNs == 0 {
		return 0
	}
	// 330 RPM is the midpoint between the two standard speeds.
	if 60e9/revolutionNs < 330 {
		return 300
	}
	return 360
}
