package provisioning

import (
	"context"
	"errors"
	"net/http"

	"tellusnode/internal/cloud"
	"tellusnode/internal/logging"

	"go.uber.org/zap"
)

// EnsureKeypair reuses the provider keypair with the given name or creates
// it from publicKey. Calling it twice with the same name reuses or creates
// exactly once. An existing keypair's material is NOT compared against
// publicKey; the caller gets whatever key is registered under that name.
func EnsureKeypair(ctx context.Context, session cloud.Session, name, publicKey string) (*cloud.Keypair, error) {
	keypair, err := session.FindKeypair(ctx, name)
	if errors.Is(err, cloud.ErrDuplicateResource) {
		logging.Logger().Error("ambiguous keypair name", zap.String("keypair", name))
		return nil, Failf(http.StatusBadRequest,
			"Multiple keypairs with the name %s already exist (duplicate resource)", name)
	}
	if err != nil {
		return nil, err
	}

	if keypair != nil {
		logging.Logger().Info("reusing existing keypair",
			zap.String("keypair", name),
			zap.String("fingerprint", keypair.Fingerprint))
		return keypair, nil
	}

	keypair, err = session.CreateKeypair(ctx, name, publicKey)
	if err != nil {
		logging.Logger().Error("keypair creation failed", zap.Error(err))
		return nil, Failf(http.StatusBadRequest, "The provided public key data is invalid")
	}
	return keypair, nil
}
