package provisioning

import (
	"fmt"

	"tellusnode/internal/cloud"
)

// ExtractFloatingIP returns the public address of a server: the second
// entry in the given network's address list. The provider lists the fixed
// address first and the floating address second, so index 1 is the public
// one.
func ExtractFloatingIP(server *cloud.Server, networkName string) (string, error) {
	addresses, ok := server.Addresses[networkName]
	if !ok {
		return "", fmt.Errorf("server has no addresses on network %s", networkName)
	}
	if len(addresses) < 2 {
		return "", fmt.Errorf("server has no floating address on network %s", networkName)
	}
	return addresses[1].Addr, nil
}

// NormalizeStatus maps a provider-native server state onto the caller-facing
// vocabulary. Unrecognized states report down with the raw state echoed so
// the caller can see what the provider said.
func NormalizeStatus(server *cloud.Server, ips []IPAddress) *Status {
	switch server.Status {
	case cloud.ServerStatusActive:
		return &Status{Status: StatusUp, IPAddresses: ips}
	case cloud.ServerStatusBuilding:
		return &Status{Status: StatusPreparing, IPAddresses: ips}
	default:
		return &Status{
			Status: StatusDown,
			Error:  fmt.Sprintf("VM is currently in state: %s", server.Status),
		}
	}
}
