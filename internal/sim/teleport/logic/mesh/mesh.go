package mesh

import "voxelgate.ai/internal/sim/teleport/model"

// DefaultMaxVisited caps a single scan so cyclic or huge networks terminate.
const DefaultMaxVisited = 8192

type Env interface {
	CellType(model.Location) model.CellType
	SelectedDestination(model.Location) (model.Location, bool)
}

type Result struct {
	Nodes   int
	Visited int
}

// neighborDirs is the fixed expansion order. The first terminal found in this order wins.
var neighborDirs = [6][3]int{
	{1, 0, 0},
	{-1, 0, 0},
	{0, 1, 0},
	{0, -1, 0},
	{0, 0, 1},
	{0, 0, -1},
}

// Scan counts node cells reachable from origin through relay and node cells.
func Scan(env Env, origin model.Location, maxVisited int) Result {
	var res Result
	res.Visited = walk(env, origin, maxVisited, isMeshCell, func(_ model.Location, c model.CellType) bool {
		if c == model.CellNode {
			res.Nodes++
		}
		return false
	})
	return res
}

// ResolveTerminal returns the selected destination of the first terminal reached from origin
// through relay cells.
func ResolveTerminal(env Env, origin model.Location, maxVisited int) (model.Location, bool) {
	var (
		dest  model.Location
		found bool
	)
	walk(env, origin, maxVisited, isTerminalPath, func(p model.Location, c model.CellType) bool {
		if c != model.CellTerminal {
			return false
		}
		dest, found = env.SelectedDestination(p)
		return true
	})
	return dest, found
}

func isMeshCell(c model.CellType) bool {
	return c == model.CellRelay || c == model.CellNode
}

func isTerminalPath(c model.CellType) bool {
	return c == model.CellRelay || c == model.CellTerminal
}

// walk runs a breadth-first search seeded with origin's admitted neighbors and returns the
// number of cells visited. visit returns true to stop the walk.
func walk(env Env, origin model.Location, maxVisited int, admit func(model.CellType) bool, visit func(model.Location, model.CellType) bool) int {
	if env == nil || maxVisited <= 0 {
		return 0
	}

	visited := map[model.Location]bool{}
	q := make([]model.Location, 0, len(neighborDirs))
	push := func(p model.Location) {
		if visited[p] || len(visited) >= maxVisited {
			return
		}
		if !admit(env.CellType(p)) {
			return
		}
		visited[p] = true
		q = append(q, p)
	}
	for _, d := range neighborDirs {
		push(origin.Offset(d[0], d[1], d[2]))
	}

	n := 0
	for len(q) > 0 {
		p := q[0]
		q = q[1:]
		n++

		c := env.CellType(p)
		if visit(p, c) {
			return n
		}
		for _, d := range neighborDirs {
			push(p.Offset(d[0], d[1], d[2]))
		}
	}
	return n
}
