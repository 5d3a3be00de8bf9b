package picker

import (
	"math/rand"
	"sort"

	"clipper/internal/candidates"
)

const (
	hybridMotionWeight = 0.7
	hybridBandWeight   = 0.3
)

// scorePool assigns a score to every pool entry per the requested mode and
// sorts the pool best-first. Ties break on session name then window start so
// a fixed seed always yields the same order.
func scorePool(pool []*poolEntry, mode Mode, seed int64) {
	switch mode {
	case ModeRandom:
		rng := rand.New(rand.NewSource(seed))
		// Entries are scored in deterministic pool order before sorting so
		// the seed fully determines the outcome.
		sort.SliceStable(pool, func(i, j int) bool { return lessEntry(pool[i], pool[j]) })
		for _, entry := range pool {
			entry.score = rng.Float64()
		}
	case ModeMotion:
		for _, entry := range pool {
			entry.score = entry.candidate.Motion
		}
	case ModeBand:
		for _, entry := range pool {
			entry.score = entry.candidate.Band
		}
	case ModeHybrid:
		motionLo, motionHi := scoreRange(pool, func(e *poolEntry) float64 { return e.candidate.Motion })
		bandLo, bandHi := scoreRange(pool, func(e *poolEntry) float64 { return e.candidate.Band })
		for _, entry := range pool {
			m := normalize(entry.candidate.Motion, motionLo, motionHi)
			b := normalize(entry.candidate.Band, bandLo, bandHi)
			entry.score = hybridMotionWeight*m + hybridBandWeight*b
		}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		return lessEntry(pool[i], pool[j])
	})
}

func lessEntry(a, b *poolEntry) bool {
	if a.session.Name != b.session.Name {
		return a.session.Name < b.session.Name
	}
	return a.candidate.StartAbs < b.candidate.StartAbs
}

func scoreRange(pool []*poolEntry, value func(*poolEntry) float64) (lo, hi float64) {
	if len(pool) == 0 {
		return 0, 0
	}
	lo = value(pool[0])
	hi = lo
	for _, entry := range pool[1:] {
		v := value(entry)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return (v - lo) / (hi - lo)
}

// selectPicks walks the scored pool best-first and greedily takes entries
// until the target count is reached. With no-overlap enabled, a candidate
// whose window intersects an already-taken or previously-picked window in
// the same session is skipped, not failed.
func selectPicks(pool []*poolEntry, req Request) []*poolEntry {
	var chosen []*poolEntry
	perSession := make(map[string]int)
	windows := make(map[string][]window)

	for _, entry := range pool {
		if len(chosen) >= req.Total {
			break
		}
		dir := entry.session.Dir
		if req.MaxPerSession > 0 && perSession[dir] >= req.MaxPerSession {
			continue
		}
		if req.NoOverlap {
			if _, seeded := windows[dir]; !seeded {
				windows[dir] = pickedWindows(entry.records)
			}
			w := window{start: entry.candidate.StartAbs, end: entry.candidate.EndAbs}
			if overlapsAny(w, windows[dir]) {
				continue
			}
			windows[dir] = append(windows[dir], w)
		}
		perSession[dir]++
		chosen = append(chosen, entry)
	}
	return chosen
}

type window struct {
	start int
	end   int
}

func (w window) overlaps(other window) bool {
	return !(w.end <= other.start || other.end <= w.start)
}

func overlapsAny(w window, existing []window) bool {
	for _, other := range existing {
		if w.overlaps(other) {
			return true
		}
	}
	return false
}

func pickedWindows(records []candidates.Candidate) []window {
	var out []window
	for _, r := range records {
		if r.Picked() {
			out = append(out, window{start: r.StartAbs, end: r.EndAbs})
		}
	}
	return out
}
