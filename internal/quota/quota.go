// Package quota estimates storage consumption so callers can warn before writes fail.
// Numbers are advisory.
package quota

import (
	"context"
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"time"
)

// DefaultWarnPercent is the usage level above which callers should warn.
const DefaultWarnPercent = 80

// ErrUnsupported is returned when the platform offers no way to measure free space
// and no quota was configured.
var ErrUnsupported = stderrors.New("storage estimation unsupported on this platform")

// Usage is a point-in-time storage estimate.
type Usage struct {
	UsedBytes      int64 `json:"usedBytes"`
	TotalBytes     int64 `json:"totalBytes"`
	AvailableBytes int64 `json:"availableBytes"`
}

// Percent returns used/total as a percentage, or 0 when total is unknown.
func (u Usage) Percent() float64 {
	if u.TotalBytes <= 0 {
		return 0
	}
	return float64(u.UsedBytes) / float64(u.TotalBytes) * 100
}

// NearLimit reports whether usage is strictly above pct percent.
func (u Usage) NearLimit(pct float64) bool {
	return u.Percent() > pct
}

// Estimator produces usage estimates.
type Estimator interface {
	Estimate(ctx context.Context) (*Usage, error)
}

// Disk estimates usage of a data directory. When Quota is set it is the total;
// otherwise the total is used bytes plus the filesystem's free space.
type Disk struct {
	Dir   string
	Quota int64
}

// Estimate implements Estimator.
func (d Disk) Estimate(ctx context.Context) (*Usage, error) {
	used, err := DirSize(ctx, d.Dir)
	if err != nil {
		return nil, err
	}

	if d.Quota > 0 {
		return &Usage{
			UsedBytes:      used,
			TotalBytes:     d.Quota,
			AvailableBytes: max(0, d.Quota-used),
		}, nil
	}

	free, err := freeBytes(d.Dir)
	if err != nil {
		return nil, err
	}
	return &Usage{
		UsedBytes:      used,
		TotalBytes:     used + free,
		AvailableBytes: free,
	}, nil
}

// DirSize sums the sizes of regular files under dir. A missing dir has size 0.
func DirSize(ctx context.Context, dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// Watch calls estimate immediately and then every interval until ctx is done.
// onWarn runs for each estimate above warnPercent. Nil estimates are skipped.
func Watch(ctx context.Context, interval time.Duration, estimate func(context.Context) *Usage, warnPercent float64, onWarn func(Usage)) {
	if interval <= 0 {
		interval = time.Minute
	}
	check := func() {
		if u := estimate(ctx); u != nil && u.NearLimit(warnPercent) {
			onWarn(*u)
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
