package serialmux

import (
	"fmt"
	"io"
	"sort"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// This is an optional interface that serial ports may implement.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	return fmt.Sprintf("%s (usb %s:%s %s)", p.Name, p.VID, p.PID, p.Product)
}

// listDetailedPorts and listPorts are swapped out in tests.
var (
	listDetailedPorts = enumerator.GetDetailedPortsList
	listPorts         = serial.GetPortsList
)

// AvailablePorts lists serial ports on the host, sorted by name. USB details
// are included when the platform enumerator provides them.
func AvailablePorts() ([]PortInfo, error) {
	var out []PortInfo

	details, err := listDetailedPorts()
	if err == nil {
		for _, d := range details {
			out = append(out, PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
	} else {
		names, err := listPorts()
		if err != nil {
			return nil, fmt.Errorf("list serial ports: %w", err)
		}
		for _, n := range names {
			out = append(out, PortInfo{Name: n})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
