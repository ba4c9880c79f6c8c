package partner

import "context"

// CompanyDirectory resolves display names of registered entities.
// It is owned by the registration subsystem and is read-only here.
type CompanyDirectory interface {
	// ResolveName returns the display name for a normalized address.
	// found is false when the address is not registered.
	ResolveName(ctx context.Context, address string) (name string, found bool, err error)
}
