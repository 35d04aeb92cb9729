package provisioning

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"tellusnode/internal/logging"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

// Sweep removes provider-side servers and keypairs that carry the
// configured name prefix but have no registry entry. Such orphans are left
// behind when a create fails after the instance exists, or when the
// in-memory registry was lost to a restart. Deletions run in parallel on a
// bounded pool. With dryRun set, orphans are only reported.
func (c *Controller) Sweep(ctx context.Context, workers int, dryRun bool) ([]string, error) {
	session, err := c.provider.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	if err := session.Authorize(ctx); err != nil {
		return nil, Failf(http.StatusUnauthorized, "There was a problem with authentication")
	}

	servers, err := session.ListServers(ctx)
	if err != nil {
		return nil, err
	}

	var orphans []string
	for _, srv := range servers {
		if !strings.HasPrefix(srv.Name, c.opts.NamePrefix) {
			continue
		}
		key := strings.TrimPrefix(srv.Name, c.opts.NamePrefix)
		_, found, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			orphans = append(orphans, srv.Name)
		}
	}

	if dryRun || len(orphans) == 0 {
		return orphans, nil
	}

	if workers < 1 {
		workers = 1
	}
	pool := pond.NewPool(min(workers, len(orphans)))

	var mu sync.Mutex
	var removed []string
	for _, name := range orphans {
		pool.Submit(func() {
			logging.Logger().Info("sweeping orphaned server", zap.String("name", name))

			srv, err := session.FindServer(ctx, name)
			if err != nil {
				logging.Logger().Error("failed to find orphaned server", zap.Error(err))
				return
			}
			if srv != nil {
				if err := session.DeleteServer(ctx, srv.ID); err != nil {
					logging.Logger().Error("failed to delete orphaned server",
						zap.String("name", name), zap.Error(err))
					return
				}
			}

			if err := session.DeleteKeypair(ctx, name); err != nil {
				logging.Logger().Warn("failed to delete orphaned keypair",
					zap.String("name", name), zap.Error(err))
			}

			mu.Lock()
			removed = append(removed, name)
			mu.Unlock()
		})
	}
	pool.StopAndWait()

	return removed, nil
}
