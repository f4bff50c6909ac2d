package jobs

import (
	"context"
	"log"
	"time"

	"github.com/ANADelta/AlphaClassBot-App2/internal/config"
	"github.com/ANADelta/AlphaClassBot-App2/internal/db"
)

// StartReminderJob periodically creates reminder notifications for schedule
// events starting within the configured lead window. Deduplication happens
// in the store, so overlapping ticks are harmless.
func StartReminderJob(ctx context.Context, cfg config.Config, store *db.Store) {
	if !cfg.ReminderJobEnabled {
		return
	}
	interval := cfg.ReminderJobInterval
	if interval <= 0 {
		interval = time.Minute
	}
	lead := cfg.ReminderLeadTime
	if lead <= 0 {
		lead = time.Hour
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				tickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				created, err := store.CreateEventReminders(tickCtx, now, now.Add(lead))
				cancel()
				if err != nil {
					log.Printf("reminder job error: %v", err)
					continue
				}
				if created > 0 {
					log.Printf("reminder job created %d notifications", created)
				}
			}
		}
	}()
}
