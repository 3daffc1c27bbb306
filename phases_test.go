package sixdof

import (
	"testing"
)

func phaseTimes(fp *FlightPhases) []float64 {
	ts := make([]float64, fp.Len())
	for i := range ts {
		ts[i] = fp.At(i).T
	}
	return ts
}

func TestFlightPhasesAdd(t *testing.T) {
	fp := NewFlightPhases(nil)
	fp.AddPhase(0, nil, nil, false, -1)
	fp.AddPhase(5, nil, nil, true, -1)
	fp.AddPhase(10, nil, nil, false, -1)
	if fp.Len() != 3 {
		t.Fatalf("expected 3 phases, got %d", fp.Len())
	}
	if !fp.At(1).Clear {
		t.Fatal("clear flag was lost")
	}

	// Inserted at the end although it starts before the last phase.
	fp.AddPhase(2, nil, nil, false, -1)
	if ts := phaseTimes(fp); len(ts) != 4 || ts[1] != 2 || ts[2] != 5 || ts[3] != 10 {
		t.Fatalf("out of order phase was not moved: %v", ts)
	}

	// Inserted at the right index but starting with its successor.
	fp.AddPhase(5, nil, nil, false, 2)
	ts := phaseTimes(fp)
	if len(ts) != 5 || ts[2] != 5 || ts[3] != 5+eventEpsilon || ts[4] != 10 {
		t.Fatalf("simultaneous phase was not delayed: %v", ts)
	}
	for i := 1; i < len(ts); i++ {
		if ts[i] <= ts[i-1] {
			t.Fatalf("phases are not strictly increasing: %v", ts)
		}
	}

	// Appended together with the last phase.
	fp.AddPhase(10, nil, nil, false, -1)
	if last := fp.At(fp.Len() - 1).T; last != 10+eventEpsilon {
		t.Fatalf("simultaneous last phase was not delayed: %f", last)
	}

	fp.FlushAfter(1)
	if ts := phaseTimes(fp); len(ts) != 2 || ts[1] != 2 {
		t.Fatalf("incorrect flush: %v", ts)
	}
	fp.FlushAfter(10)
	if fp.Len() != 2 {
		t.Fatalf("flush past the end should be a no-op, got %d phases", fp.Len())
	}
}

func TestFlightPhasesCallbacksCopied(t *testing.T) {
	fp := NewFlightPhases(nil)
	cbs := []Callback{func(*Flight) {}}
	fp.AddPhase(0, nil, cbs, false, -1)
	cbs[0] = nil
	if fp.At(0).Callbacks[0] == nil {
		t.Fatal("phase callbacks should not alias the caller's slice")
	}
}

func TestTimeNodes(t *testing.T) {
	p1, err := NewParachute(ParachuteConfig{Name: "a", CdS: 1, SamplingRate: 10, Trigger: func(float64, State) bool { return false }})
	if err != nil {
		t.Fatalf("err %s", err)
	}
	p2, _ := NewParachute(ParachuteConfig{Name: "b", CdS: 1, SamplingRate: 10, Trigger: func(float64, State) bool { return false }})

	var nodes TimeNodes
	nodes.AddParachutes([]*Parachute{p1}, 0, 1)
	if nodes.Len() != 11 {
		t.Fatalf("expected 11 sampling nodes, got %d", nodes.Len())
	}
	nodes.AddParachutes([]*Parachute{p2}, 0, 1)
	nodes.AddNode(0.55, nil, []Callback{func(*Flight) {}})
	nodes.AddNode(1, nil, nil)
	nodes.Sort()
	for i := 1; i < nodes.Len(); i++ {
		if nodes.At(i).T < nodes.At(i-1).T {
			t.Fatalf("nodes are not sorted at %d", i)
		}
	}
	nodes.Merge()
	if nodes.Len() != 12 {
		t.Fatalf("expected 12 nodes after merging, got %d", nodes.Len())
	}
	if n := nodes.At(0); len(n.Parachutes) != 2 || n.Parachutes[0] != p1 || n.Parachutes[1] != p2 {
		t.Fatalf("merged node should keep both parachutes in order: %s", n)
	}
	if n := nodes.At(6); n.T != 0.55 || len(n.Callbacks) != 1 || len(n.Parachutes) != 0 {
		t.Fatalf("unexpected callback node %s", n)
	}
	if n := nodes.At(nodes.Len() - 1); n.T != 1 || len(n.Parachutes) != 2 {
		t.Fatalf("unexpected final node %s", n)
	}
	nodes.FlushAfter(0)
	if nodes.Len() != 1 {
		t.Fatalf("expected a single node after flushing, got %d", nodes.Len())
	}

	var partial TimeNodes
	partial.AddParachutes([]*Parachute{p1}, 0.25, 0.65)
	if partial.Len() != 4 || partial.At(0).T != 0.30000000000000004 {
		t.Fatalf("sampling nodes should fall on multiples of the period: %d nodes", partial.Len())
	}
}
