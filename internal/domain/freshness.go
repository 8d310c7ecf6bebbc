package domain

import "time"

// StaleKinds returns, in Kinds() order, every kind whose latest measurement is
// not newer than now - maxAge. A kind missing from latest is stale.
func StaleKinds(latest map[Kind]time.Time, now time.Time, maxAge time.Duration) []Kind {
	cutoff := now.Add(-maxAge)
	var stale []Kind
	for _, k := range Kinds() {
		ts, ok := latest[k]
		if !ok || !ts.After(cutoff) {
			stale = append(stale, k)
		}
	}
	return stale
}
