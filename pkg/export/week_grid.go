package export

// WeekGrid is a day by slot matrix of cell lines.
type WeekGrid struct {
	Days  []string
	Slots []string
	cells map[[2]int][]string
}

// NewWeekGrid builds an empty grid.
func NewWeekGrid(days, slots []string) WeekGrid {
	return WeekGrid{Days: days, Slots: slots, cells: make(map[[2]int][]string)}
}

// Add appends a line to the cell at (day, slot). Out of range positions are ignored.
func (g WeekGrid) Add(day, slot int, line string) {
	if day < 0 || day >= len(g.Days) || slot < 0 || slot >= len(g.Slots) || g.cells == nil {
		return
	}
	key := [2]int{day, slot}
	g.cells[key] = append(g.cells[key], line)
}

// Cell returns the lines of one cell.
func (g WeekGrid) Cell(day, slot int) []string {
	return g.cells[[2]int{day, slot}]
}
