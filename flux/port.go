package flux

import (
	"fmt"
	"strconv"

	"go.bug.st/serial/enumerator"
)

// FindPort returns the serial port of a USB adapter. With an empty name
// the first port with the given USB IDs is taken.
func FindPort(name string, vendorID, productID uint16, product string) (*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	for _, port := range ports {
		if name != "" {
			if port.Name == name {
				return port, nil
			}
			continue
		}
		if matchUSB(port, vendorID, productID) {
			return port, nil
		}
	}
	if name != "" {
		// Not enumerated as USB, open it by name anyway.
		return &enumerator.PortDetails{Name: name}, nil
	}
	return nil, fmt.Errorf("no %s found", product)
}

func matchUSB(port *enumerator.PortDetails, vendorID, productID uint16) bool {
	if !port.IsUSB {
		return false
	}
	vid, err := strconv.ParseUint(port.VID, 16, 16)
	if err != nil {
		return false
	}
	pid, err := strconv.ParseUint(port.PID, 16, 16)
	if err != nil {
		return false
	}
	return uint16(vid) == vendorID && uint16(pid) == productID
}
