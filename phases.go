package sixdof

import (
	"fmt"
	"math"
	"sort"
	"strings"

	kitlog "github.com/go-kit/log"
)

// Callback is run at the start of a flight phase or at a time node.
type Callback func(f *Flight)

// FlightPhase is a segment of the flight, starting at T and governed by Model
// until the next phase starts. The final phase of a list has no model and
// only marks the end of the simulation.
type FlightPhase struct {
	T         float64
	Model     DynamicsModel
	Callbacks []Callback
	// Clear drops the parachute subscriptions of the first time node of the phase.
	Clear bool
}

func (p *FlightPhase) String() string {
	name := "none"
	if p.Model != nil {
		name = p.Model.Name()
	}
	return fmt.Sprintf("{t=%.6f model=%s clear=%v}", p.T, name, p.Clear)
}

// FlightPhases is the time ordered list of flight phases. It may grow while
// it is iterated.
type FlightPhases struct {
	list   []*FlightPhase
	logger kitlog.Logger
}

// NewFlightPhases returns an empty list of phases which logs its warnings to logger.
func NewFlightPhases(logger kitlog.Logger) *FlightPhases {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	return &FlightPhases{logger: logger}
}

// Len returns the number of phases.
func (fp *FlightPhases) Len() int { return len(fp.list) }

// At returns the i-th phase.
func (fp *FlightPhases) At(i int) *FlightPhase { return fp.list[i] }

func (fp *FlightPhases) String() string {
	parts := make([]string, len(fp.list))
	for i, p := range fp.list {
		parts[i] = p.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (fp *FlightPhases) warn(phase *FlightPhase, msg string) {
	fp.logger.Log("level", "warning", "subsys", "phases", "message", msg, "t", phase.T, "hint", "more than one parachute may have been triggered simultaneously")
}

// Add inserts a phase before the provided index, or appends it if the index
// is negative. Phases stay sorted by start time: a phase starting at the same
// time as a neighbour is delayed by a negligible amount, and a phase inserted
// at the wrong index is moved until it fits, each with a warning.
func (fp *FlightPhases) Add(phase *FlightPhase, index int) {
	for {
		n := len(fp.list)
		if n == 0 {
			fp.list = append(fp.list, phase)
			return
		}
		if index < 0 || index >= n {
			prev := fp.list[n-1]
			switch {
			case phase.T > prev.T:
				fp.list = append(fp.list, phase)
				return
			case phase.T == prev.T:
				fp.warn(phase, "flight phase starts together with the one preceding it")
				phase.T += eventEpsilon
			default:
				fp.warn(phase, "flight phase starts before the one preceding it")
				index = n - 1
			}
			continue
		}
		next := fp.list[index]
		prevT := math.Inf(-1)
		if index > 0 {
			prevT = fp.list[index-1].T
		}
		switch {
		case prevT < phase.T && phase.T < next.T:
			fp.list = append(fp.list, nil)
			copy(fp.list[index+1:], fp.list[index:])
			fp.list[index] = phase
			return
		case phase.T < prevT:
			fp.warn(phase, "flight phase starts before the one preceding it")
			index--
		case phase.T == prevT:
			fp.warn(phase, "flight phase starts together with the one preceding it")
			phase.T += eventEpsilon
		case phase.T == next.T:
			fp.warn(phase, "flight phase starts together with the one following it")
			phase.T += eventEpsilon
			index++
		default:
			fp.warn(phase, "flight phase starts after the one following it")
			index++
		}
	}
}

// AddPhase creates and adds a phase, see Add.
func (fp *FlightPhases) AddPhase(t float64, model DynamicsModel, callbacks []Callback, clear bool, index int) {
	cbs := make([]Callback, len(callbacks))
	copy(cbs, callbacks)
	fp.Add(&FlightPhase{T: t, Model: model, Callbacks: cbs, Clear: clear}, index)
}

// FlushAfter removes all phases after the provided index.
func (fp *FlightPhases) FlushAfter(index int) {
	if index+1 < len(fp.list) {
		fp.list = fp.list[:index+1]
	}
}

// TimeNode is an instant of a phase at which callbacks are run and the
// subscribed parachutes sample their trigger.
type TimeNode struct {
	T          float64
	Parachutes []*Parachute
	Callbacks  []Callback
}

func (n *TimeNode) String() string {
	return fmt.Sprintf("{t=%.6f parachutes=%d}", n.T, len(n.Parachutes))
}

// TimeNodes is the list of time nodes of a phase.
type TimeNodes struct {
	list []*TimeNode
}

// Len returns the number of nodes.
func (tn *TimeNodes) Len() int { return len(tn.list) }

// At returns the i-th node.
func (tn *TimeNodes) At(i int) *TimeNode { return tn.list[i] }

// Add appends a node.
func (tn *TimeNodes) Add(node *TimeNode) {
	tn.list = append(tn.list, node)
}

// AddNode creates and appends a node.
func (tn *TimeNodes) AddNode(t float64, parachutes []*Parachute, callbacks []Callback) {
	tn.Add(&TimeNode{T: t, Parachutes: append([]*Parachute(nil), parachutes...), Callbacks: append([]Callback(nil), callbacks...)})
}

// AddParachutes appends one node per sampling instant of each parachute
// within [t0, t1].
func (tn *TimeNodes) AddParachutes(parachutes []*Parachute, t0, t1 float64) {
	for _, p := range parachutes {
		dt := 1 / p.SamplingRate
		for i := math.Ceil(t0 / dt); i <= math.Floor(t1/dt); i++ {
			tn.AddNode(i*dt, []*Parachute{p}, nil)
		}
	}
}

// Sort orders the nodes by time, keeping insertion order for equal times.
func (tn *TimeNodes) Sort() {
	sort.SliceStable(tn.list, func(i, j int) bool { return tn.list[i].T < tn.list[j].T })
}

// Merge combines consecutive nodes less than 1e-7 s apart. The list must be sorted.
func (tn *TimeNodes) Merge() {
	if len(tn.list) == 0 {
		return
	}
	merged := []*TimeNode{tn.list[0]}
	for _, node := range tn.list[1:] {
		last := merged[len(merged)-1]
		if math.Abs(node.T-last.T) < eventEpsilon {
			last.Parachutes = append(last.Parachutes, node.Parachutes...)
			last.Callbacks = append(last.Callbacks, node.Callbacks...)
			continue
		}
		merged = append(merged, node)
	}
	tn.list = merged
}

// FlushAfter removes all nodes after the provided index.
func (tn *TimeNodes) FlushAfter(index int) {
	if index+1 < len(tn.list) {
		tn.list = tn.list[:index+1]
	}
}
