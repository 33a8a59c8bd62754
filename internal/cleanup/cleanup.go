// Package cleanup hosts background maintenance goroutines.
package cleanup

import (
	"context"
	"log"
	"time"

	"github.com/miras/smartclub/internal/booking"
)

// StartExpirySweeper runs svc.MarkExpired on a ticker so live
// reservations whose end has passed get their EXPIRED status persisted.
// Reads already derive expiry lazily; the sweeper just keeps the stored
// rows in line with what readers report.  Call as a goroutine; it runs
// until the process exits.
func StartExpirySweeper(svc *booking.Service, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := svc.MarkExpired(ctx)
		cancel()
		if err != nil {
			log.Printf("expiry sweep failed: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("expiry sweep: marked %d reservations expired", n)
		}
	}
}
