package layout

// AssignColumns gives every item of one cluster the lowest-indexed column
// whose previous occupant ended at or before the item's start, opening a new
// column when none is free. Items are expected in SortItems order; earlier
// items win lower columns on ties.
//
// ColumnCount is the number of columns ever opened in the cluster, not the
// concurrency around each item, so every member of a cluster gets the same
// width. An item that overlaps a single neighbour can still be drawn at a
// third of the canvas when a chain elsewhere in its cluster needed three
// columns.
//
// A copy is returned; the input is not modified.
func AssignColumns(cluster []Item) []Item {
	out := make([]Item, len(cluster))
	var activeEnd []int

	for i, it := range cluster {
		col := -1
		for c, end := range activeEnd {
			if end <= it.StartMinute {
				col = c
				break
			}
		}
		if col < 0 {
			col = len(activeEnd)
			activeEnd = append(activeEnd, 0)
		}
		activeEnd[col] = it.EndMinute
		it.Column = col
		out[i] = it
	}

	for i := range out {
		out[i].ColumnCount = len(activeEnd)
	}
	return out
}
