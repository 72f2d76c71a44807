package types

import "time"

// TopologyEdge is a directed permission from one PEA to another: a recipe
// step on ToPEA may follow a step on FromPEA.
type TopologyEdge struct {
	FromPea string `json:"from_pea"`
	ToPea   string `json:"to_pea"`
}

// Topology is the full set of directed edges over PEAs, stamped with the
// instant it was last replaced.
type Topology struct {
	Edges     []TopologyEdge `json:"edges"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Has reports whether the directed edge from->to is present.
func (t *Topology) Has(from, to string) bool {
	for _, e := range t.Edges {
		if e.FromPea == from && e.ToPea == to {
			return true
		}
	}
	return false
}
