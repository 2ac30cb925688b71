package softpool

import (
	json "github.com/goccy/go-json"
)

// Stats is a point-in-time snapshot of pool counters. Idle is approximate
// (see Size); the remaining fields are exact.
type Stats struct {
	Pool      string `json:"pool"`
	Idle      int    `json:"idle"`
	Active    int    `json:"active"`
	Created   uint64 `json:"created"`
	Destroyed uint64 `json:"destroyed"`
	Reclaimed uint64 `json:"reclaimed"`
	Borrows   uint64 `json:"borrows"`
	Returns   uint64 `json:"returns"`
}

// Stats captures the pool's current counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Pool:      p.name,
		Idle:      p.Size(),
		Active:    p.NumActive(),
		Created:   p.created.Load(),
		Destroyed: p.destroyed.Load(),
		Reclaimed: p.reclaimed.Load(),
		Borrows:   p.borrows.Load(),
		Returns:   p.returns.Load(),
	}
}

func (s Stats) String() string {
	out, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(out)
}
