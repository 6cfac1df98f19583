//go:build !linux && !darwin && !freebsd && !dragonfly && !windows

package quota

func freeBytes(string) (int64, error) {
	return 0, ErrUnsupported
}
