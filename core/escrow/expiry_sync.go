package escrow

import (
	"context"
	"log"
	"time"
)

// StartExpirySync runs a background sweep that refunds and expires OPEN
// tasks whose deadline has passed. It stops when ctx is cancelled.
func StartExpirySync(ctx context.Context, controller *Controller, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := controller.ExpireDueTasks(ctx)
				if err != nil {
					log.Printf("expiry sweep error: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("expiry sweep expired %d task(s)", n)
				}
			}
		}
	}()
}
