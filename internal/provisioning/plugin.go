// Package provisioning implements the node plugin lifecycle: translating an
// abstract resource offering into provider-side resources, reporting their
// state, and tearing them down again.
package provisioning

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Normalized caller-facing states.
const (
	StatusUp        = "up"
	StatusPreparing = "preparing"
	StatusDown      = "down"
)

// Plugin is the full capability surface exposed to the orchestrator, one
// configuration per Order Key.
type Plugin interface {
	Create(ctx context.Context, offering Offering) error
	Status(ctx context.Context, key string) (*Status, error)
	Destroy(ctx context.Context, key string) error
	Update(ctx context.Context, key string, offering Offering) error
}

// OrderKey derives the configuration key from an order ID. Keys are
// case-insensitive on the wire and stored upper-cased.
func OrderKey(orderID string) string {
	return strings.ToUpper(orderID)
}

// Quantity is a value with a data-size unit, normalized to whole gigabytes
// before use.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Gigabytes converts the quantity to a rounded whole-GB count.
func (q Quantity) Gigabytes() (int, error) {
	switch q.Unit {
	case "GByte", "GB":
		return int(math.Round(q.Value)), nil
	case "MByte", "MB":
		return int(math.Round(q.Value / 1000)), nil
	case "TByte", "TB":
		return int(math.Round(q.Value * 1000)), nil
	default:
		return 0, fmt.Errorf("unknown unit %q", q.Unit)
	}
}

// CPU describes the requested core count.
type CPU struct {
	Cores float64 `json:"cores"`
}

// ServerFlavor is the abstract compute shape of an offering.
type ServerFlavor struct {
	CPU        CPU      `json:"cpu"`
	RAM        Quantity `json:"ram"`
	BootVolume Quantity `json:"boot_volume"`
}

// VirtualMachineOffering describes a VM request including SSH access
// material.
type VirtualMachineOffering struct {
	ServerFlavor ServerFlavor `json:"server_flavor"`
	SSHKeys      []string     `json:"ssh_keys"`
}

// Offering is the orchestrator's provisioning request. VirtualMachine is
// nil when the offering asks for something this plugin cannot provision.
type Offering struct {
	OrderID        string                  `json:"order_id"`
	VirtualMachine *VirtualMachineOffering `json:"virtual_machine_service_offering"`
}

// IPAddress is one address reported to the orchestrator.
type IPAddress struct {
	Type   string `json:"type"`   // ipv4 or ipv6
	Prefix string `json:"prefix"` // prefix length
	Value  string `json:"value"`
}

// Status is the normalized view of a configuration's instance, derived from
// live provider state on every call.
type Status struct {
	Status      string      `json:"status,omitempty"`
	IPAddresses []IPAddress `json:"ip_addresses,omitempty"`
	Error       string      `json:"error,omitempty"`
}
