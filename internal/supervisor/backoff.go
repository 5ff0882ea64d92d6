package supervisor

import "time"

// backoffDelay computes the reconnect delay for a 1-based attempt number:
// base doubled per attempt, capped. Attempt 1 waits base.
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
