package instance

import "github.com/ssr0016/next-rental-eq-marketplace/pkg/env"

// ID names this replica in logs. Platforms set one of these; local runs get
// the fallback.
func ID(fallback string) string {
	if id, ok := env.First("RENTAL_INSTANCE_ID", "DYNO", "HOSTNAME"); ok {
		return id
	}
	return fallback
}
