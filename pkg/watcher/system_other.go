//go:build !darwin || !cgo

package watcher

import "time"

type unsupportedService struct{}

// NewSystemService returns a service whose streams can not be created:
// FSEvents only exists on macOS and the binding needs cgo.
func NewSystemService() Service { return unsupportedService{} }

func (unsupportedService) CreateStream(StreamSpec, DeliverFunc) (Stream, error) {
	return nil, ErrUnsupported
}

func (unsupportedService) DeviceForPath(string) (int32, error) { return 0, ErrUnsupported }

func (unsupportedService) LastEventIDBefore(int32, time.Time) (uint64, error) {
	return 0, ErrUnsupported
}
