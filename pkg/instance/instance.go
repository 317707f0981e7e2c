package instance

import "os"

// GetID identifies this process in worker logs so outbox publisher and cron
// sweep replicas can be told apart. Falls back to a fixed name when the
// deployment does not inject one.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return "worker-0"
}
