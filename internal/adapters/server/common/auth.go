package common

import (
	"context"
	"fmt"

	"github.com/hylla/warden/internal/app"
)

// AuthenticateHeader verifies an Authorization header and binds the caller to ctx.
func AuthenticateHeader(ctx context.Context, auth Authenticator, header string) (context.Context, error) {
	if auth == nil {
		return ctx, fmt.Errorf("no authenticator configured: %w", app.ErrUnauthenticated)
	}
	userID, err := auth.VerifyHeader(header)
	if err != nil {
		return ctx, fmt.Errorf("%w: %w", app.ErrUnauthenticated, err)
	}
	return app.WithActor(ctx, userID), nil
}
