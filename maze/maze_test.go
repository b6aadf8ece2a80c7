package maze

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func countCells(grid [][]int, c Cell) int {
	n := 0
	for _, row := range grid {
		for _, v := range row {
			if v == c {
				n++
			}
		}
	}
	return n
}

// reachable 从起点出发的 4 邻接连通格子数
func reachable(grid [][]int, from Point) map[Point]bool {
	seen := map[Point]bool{from: true}
	queue := []Point{from}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, d := range []Point{{0, 1}, {0, -1}, {1, 0}, {-1, 0}} {
			n := Point{p.X + d.X, p.Y + d.Y}
			if n.Y < 0 || n.Y >= len(grid) || n.X < 0 || n.X >= len(grid[0]) {
				continue
			}
			if grid[n.Y][n.X] == Wall || seen[n] {
				continue
			}
			seen[n] = true
			queue = append(queue, n)
		}
	}
	return seen
}

func TestGenerateInvariants(t *testing.T) {
	sizes := [][2]int{{5, 5}, {6, 6}, {5, 9}, {21, 21}, {30, 17}, {51, 51}}
	for seed := int64(1); seed <= 20; seed++ {
		for _, sz := range sizes {
			g := NewGenerator(rand.NewSource(seed))
			m, err := g.Generate(sz[0], sz[1])
			if err != nil {
				t.Fatalf("seed=%d size=%v: %v", seed, sz, err)
			}
			if len(m.Grid) != sz[1] || len(m.Grid[0]) != sz[0] {
				t.Fatalf("grid shape = %dx%d, want %dx%d", len(m.Grid[0]), len(m.Grid), sz[0], sz[1])
			}
			if n := countCells(m.Grid, Start); n != 1 {
				t.Fatalf("seed=%d size=%v: %d start cells", seed, sz, n)
			}
			if n := countCells(m.Grid, Goal); n != 1 {
				t.Fatalf("seed=%d size=%v: %d goal cells", seed, sz, n)
			}
			minDist := float64(max(sz[0], sz[1])) / 2
			if float64(m.Start.Manhattan(m.Goal)) < minDist {
				t.Fatalf("distance %d < %.1f", m.Start.Manhattan(m.Goal), minDist)
			}

			seen := reachable(m.Grid, m.Start)
			for y, row := range m.Grid {
				for x, v := range row {
					if v != Wall && !seen[Point{x, y}] {
						t.Fatalf("seed=%d size=%v: cell (%d,%d) not connected to start", seed, sz, x, y)
					}
				}
			}
			if !seen[m.Goal] {
				t.Fatalf("goal not reachable")
			}
		}
	}
}

func TestGenerateBorderIsWall(t *testing.T) {
	m, err := NewGenerator(rand.NewSource(7)).Generate(12, 9)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for x := 0; x < m.Width; x++ {
		if m.Grid[0][x] != Wall || m.Grid[m.Height-1][x] != Wall {
			t.Fatalf("top/bottom border open at x=%d", x)
		}
	}
	for y := 0; y < m.Height; y++ {
		if m.Grid[y][0] != Wall || m.Grid[y][m.Width-1] != Wall {
			t.Fatalf("left/right border open at y=%d", y)
		}
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	a, err := NewGenerator(rand.NewSource(42)).Generate(21, 21)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := NewGenerator(rand.NewSource(42)).Generate(21, 21)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !reflect.DeepEqual(a.Grid, b.Grid) {
		t.Fatalf("same seed produced different mazes:\n%s\n%s", a, b)
	}
}

func TestGenerateInvalidDimensions(t *testing.T) {
	for _, sz := range [][2]int{{0, 0}, {4, 10}, {10, 4}, {1, 1}, {-3, 7}} {
		_, err := NewGenerator(rand.NewSource(1)).Generate(sz[0], sz[1])
		if !errors.Is(err, ErrInvalidDimensions) {
			t.Fatalf("size %v: err = %v, want ErrInvalidDimensions", sz, err)
		}
	}
}

func TestGenerateRetriesExhausted(t *testing.T) {
	// 5x5 仅有 4 个奇数格，一次采样很可能不满足距离要求
	failures := 0
	for seed := int64(0); seed < 50; seed++ {
		_, err := NewGenerator(rand.NewSource(seed)).WithMaxAttempts(1).Generate(5, 5)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrGenerationFailed) {
			t.Fatalf("err = %v, want ErrGenerationFailed", err)
		}
		failures++
	}
	if failures == 0 {
		t.Fatalf("expected at least one exhausted generation over 50 seeds")
	}
}

func TestFlattenReconstructRoundTrip(t *testing.T) {
	for w := 1; w <= 6; w++ {
		for h := 1; h <= 6; h++ {
			grid := make([][]int, h)
			for y := range grid {
				grid[y] = make([]int, w)
				for x := range grid[y] {
					grid[y][x] = (x*7 + y*3) % 5
				}
			}
			flat := Flatten(grid)
			if len(flat) != w*h {
				t.Fatalf("len(flat) = %d, want %d", len(flat), w*h)
			}
			back, err := Reconstruct(flat, w, h)
			if err != nil {
				t.Fatalf("Reconstruct(%d,%d): %v", w, h, err)
			}
			if !reflect.DeepEqual(grid, back) {
				t.Fatalf("round trip mismatch for %dx%d", w, h)
			}
		}
	}
}

func TestReconstructRows(t *testing.T) {
	grid, err := Reconstruct([]int{0, 1, 0, 1}, 2, 2)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	want := [][]int{{0, 1}, {0, 1}}
	if !reflect.DeepEqual(grid, want) {
		t.Fatalf("grid = %v, want %v", grid, want)
	}
}

func TestReconstructShapeMismatch(t *testing.T) {
	cases := []struct {
		data []int
		w, h int
	}{
		{[]int{0, 1, 0}, 2, 2},
		{[]int{}, 0, 0},
		{[]int{1}, 1, 0},
	}
	for _, c := range cases {
		if _, err := Reconstruct(c.data, c.w, c.h); !errors.Is(err, ErrShapeMismatch) {
			t.Fatalf("Reconstruct(%v,%d,%d) err = %v", c.data, c.w, c.h, err)
		}
	}
}
