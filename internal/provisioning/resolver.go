package provisioning

import (
	"context"
	"net/http"

	"tellusnode/internal/cloud"
	"tellusnode/internal/logging"

	"go.uber.org/zap"
)

// Resolved holds the provider-side resources backing one launch request.
type Resolved struct {
	Image   cloud.Image
	Flavor  cloud.Flavor
	Network cloud.Network
}

// Resolver deterministically finds and validates the image, flavor, and
// network needed to launch an instance. Pure lookups; it never mutates
// provider state.
type Resolver struct {
	// NetworkName is the project-derived network servers attach to,
	// e.g. <project>-network.
	NetworkName string
}

// Resolve validates the image against the requested shape first, then looks
// up the size class derived from the already-validated quantities, then the
// network. Size classes are never created on the fly.
func (r *Resolver) Resolve(ctx context.Context, session cloud.Session, imageName string, memoryGB, cores, diskGB int) (*Resolved, error) {
	image, err := session.FindImage(ctx, imageName)
	if err != nil {
		return nil, err
	}
	if image == nil {
		return nil, Failf(http.StatusNotFound, "Image %s does not exist", imageName)
	}
	if float64(image.MinRAMMegabytes)/1000 > float64(memoryGB) {
		return nil, Failf(http.StatusBadRequest, "Not enough memory to run the selected image")
	}
	if image.MinDiskGigabytes > diskGB {
		return nil, Failf(http.StatusBadRequest, "Not enough disk space to run the selected image")
	}

	flavorName := session.FlavorName(cores, memoryGB, diskGB)
	logging.Logger().Debug("resolving flavor", zap.String("flavor", flavorName))

	flavor, err := session.FindFlavor(ctx, flavorName)
	if err != nil {
		return nil, err
	}
	if flavor == nil {
		return nil, Failf(http.StatusNotFound, "Flavor %s does not exist", flavorName)
	}

	network, err := session.FindNetwork(ctx, r.NetworkName)
	if err != nil || network == nil {
		return nil, Failf(http.StatusNotFound, "Could not find network %s", r.NetworkName)
	}

	return &Resolved{Image: *image, Flavor: *flavor, Network: *network}, nil
}
