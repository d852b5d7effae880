package system

import "context"

// Service is a background component with an explicit lifecycle, such as the
// bundle finalisation scheduler. The manager starts registered services in
// registration order and stops them in reverse.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
