package contracts

import (
	"context"

	"github.com/julienschmidt/httprouter"
)

// Handler mounts a group of routes on the shared router.
type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// Readiness is implemented by services whose backing stores can be probed.
// A nil error means the service can take traffic.
type Readiness interface {
	Ready(ctx context.Context) error
}
