// internal/browser/cdpdriver/context.go
package cdpdriver

import "context"

// CombineContext derives a context from tabCtx, which carries the chromedp
// target, that is also cancelled when opCtx is done. opCtx carries the
// caller's deadline and cancellation.
func CombineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	if d, ok := opCtx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, d)
		inner := cancel
		cancel = func() { cancelDeadline(); inner() }
	}
	stop := context.AfterFunc(opCtx, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
