package classroom

import "math"

// solveAssignment computes a minimum-cost bipartite assignment over a
// rectangular cost matrix using the Jonker-Volgenant variant of the
// Hungarian algorithm (O(n^3) on the padded square). No library in the
// teacher repo or the rest of the pack exposes rectangular
// minimum-cost assignment (gonum provides linear algebra and
// statistics, not combinatorial optimization), so this is hand-rolled,
// matching the teacher's own willingness to hand-roll its (greedy)
// tracker matching in vision/track.go rather than reach for a library.
//
// cost[i][j] is the cost of assigning row i to column j. Rows/columns
// are padded with a sentinel cost to form a square matrix internally;
// padded pairs never appear in the result. Returns, for each row, the
// assigned column index or -1 if unassigned (more rows than columns,
// or vice versa).
func solveAssignment(cost [][]float64) (rowToCol []int, colToRow []int) {
	nRows := len(cost)
	nCols := 0
	if nRows > 0 {
		nCols = len(cost[0])
	}
	if nRows == 0 || nCols == 0 {
		rowToCol = make([]int, nRows)
		for i := range rowToCol {
			rowToCol[i] = -1
		}
		colToRow = make([]int, nCols)
		for j := range colToRow {
			colToRow[j] = -1
		}
		return rowToCol, colToRow
	}

	n := nRows
	if nCols > n {
		n = nCols
	}

	const sentinel = 1e9
	sq := make([][]float64, n)
	for i := 0; i < n; i++ {
		sq[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i < nRows && j < nCols {
				sq[i][j] = cost[i][j]
			} else {
				sq[i][j] = sentinel
			}
		}
	}

	colAssign := hungarian(sq)

	rowToCol = make([]int, nRows)
	for i := range rowToCol {
		rowToCol[i] = -1
	}
	colToRow = make([]int, nCols)
	for j := range colToRow {
		colToRow[j] = -1
	}

	for i := 0; i < n; i++ {
		j := colAssign[i]
		if i < nRows && j < nCols && sq[i][j] < sentinel {
			rowToCol[i] = j
			colToRow[j] = i
		}
	}
	return rowToCol, colToRow
}

// hungarian solves the square assignment problem via the Jonker-Volgenant
// shortest-augmenting-path formulation of the Hungarian algorithm and
// returns, for each row, its assigned column.
func hungarian(cost [][]float64) []int {
	n := len(cost)
	const inf = math.MaxFloat64 / 2

	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1) // p[j] = row assigned to column j (1-indexed columns, 0 = unassigned)
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = inf
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	result := make([]int, n)
	for j := 1; j <= n; j++ {
		if p[j] != 0 {
			result[p[j]-1] = j - 1
		}
	}
	return result
}
