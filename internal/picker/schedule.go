package picker

import (
	"time"
)

const defaultStartDelay = 5 * time.Minute

// schedule assigns publish timestamps to n picks. Slot k is start plus k
// pitch intervals, rendered in the request's fixed-offset zone. A
// non-positive pitch means publish scheduling is handled downstream, so
// every slot is left empty.
func schedule(req Request, now time.Time, n int) []string {
	slots := make([]string, n)
	if req.PitchHours <= 0 {
		return slots
	}

	start := req.Start
	if start.IsZero() {
		start = now.Add(defaultStartDelay)
	}
	start = start.In(req.Zone).Truncate(time.Second)

	pitch := time.Duration(req.PitchHours * float64(time.Hour))
	for k := 0; k < n; k++ {
		slots[k] = start.Add(time.Duration(k) * pitch).Format(time.RFC3339)
	}
	return slots
}
