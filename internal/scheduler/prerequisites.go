package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
)

var (
	// ErrPrerequisiteCycle marks a catalogue whose prerequisite graph is not a DAG.
	ErrPrerequisiteCycle = errors.New("prerequisite cycle")
	// ErrUnknownReference marks a reference to a course, faculty or room that does not exist.
	ErrUnknownReference = errors.New("unknown reference")
	// ErrInvalidEntry marks a schedule entry whose day or times cannot be read.
	ErrInvalidEntry = errors.New("invalid schedule entry")
)

// prerequisiteGraph indexes the catalogue by normalised course code.
type prerequisiteGraph struct {
	byCode map[string]models.Course
	edges  map[string][]string
}

func codeKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newPrerequisiteGraph(catalogue []models.Course) *prerequisiteGraph {
	g := &prerequisiteGraph{
		byCode: make(map[string]models.Course, len(catalogue)),
		edges:  make(map[string][]string, len(catalogue)),
	}
	for _, c := range catalogue {
		key := codeKey(c.Code)
		g.byCode[key] = c
		for _, p := range c.Prerequisites {
			if pk := codeKey(p); pk != "" {
				g.edges[key] = append(g.edges[key], pk)
			}
		}
	}
	for key := range g.edges {
		sort.Strings(g.edges[key])
	}
	return g
}

// ValidateCatalogue checks that every prerequisite resolves and that the
// prerequisite graph is acyclic.
func ValidateCatalogue(catalogue []models.Course) error {
	g := newPrerequisiteGraph(catalogue)

	codes := make([]string, 0, len(g.byCode))
	for code := range g.byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		for _, p := range g.edges[code] {
			if _, ok := g.byCode[p]; !ok {
				return fmt.Errorf("%w: course %s lists unknown prerequisite %s", ErrUnknownReference, code, p)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(codes))
	var path []string
	var visit func(code string) error
	visit = func(code string) error {
		switch state[code] {
		case visiting:
			start := 0
			for i, c := range path {
				if c == code {
					start = i
					break
				}
			}
			cycle := append(append([]string(nil), path[start:]...), code)
			return fmt.Errorf("%w: %s", ErrPrerequisiteCycle, strings.Join(cycle, " -> "))
		case done:
			return nil
		}
		state[code] = visiting
		path = append(path, code)
		for _, next := range g.edges[code] {
			if err := visit(next); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[code] = done
		return nil
	}

	for _, code := range codes {
		if err := visit(code); err != nil {
			return err
		}
	}
	return nil
}

// ancestors returns every transitive prerequisite code of the course, sorted.
// The graph is assumed acyclic; revisits are skipped regardless.
func (g *prerequisiteGraph) ancestors(code string) []string {
	seen := map[string]bool{}
	stack := append([]string(nil), g.edges[codeKey(code)]...)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[next] {
			continue
		}
		seen[next] = true
		stack = append(stack, g.edges[next]...)
	}
	out := make([]string, 0, len(seen))
	for code := range seen {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
