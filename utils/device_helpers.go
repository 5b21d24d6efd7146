package utils

import (
	"github.com/notargets/devbuf/device/hostsim"
	"time"
)

// CreateTestDevice creates a host-simulated Device for testing
func CreateTestDevice() *hostsim.Device {
	return hostsim.New(hostsim.Options{})
}

// CreateSlowTestDevice creates a host-simulated Device whose device to
// device copies take at least latencyMs milliseconds
func CreateSlowTestDevice(latencyMs int) *hostsim.Device {
	return hostsim.New(hostsim.Options{CopyLatency: time.Duration(latencyMs) * time.Millisecond})
}
