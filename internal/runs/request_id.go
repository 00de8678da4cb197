package runs

import (
	"context"

	"compliance-backend/internal/shared/telemetry"
)

// backgroundWithRequestID detaches async work from the request lifetime but
// keeps its request ID for logging.
func backgroundWithRequestID(ctx context.Context) context.Context {
	return telemetry.WithRequestID(context.Background(), telemetry.RequestID(ctx))
}
