//go:build !linux && !(darwin && cgo)

package sleep

import "context"

// Start is a no-op where neither logind nor IOKit is available.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Debug("Sleep monitor not supported on this platform")
}
