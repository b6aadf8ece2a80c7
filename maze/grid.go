package maze

import "fmt"

// Flatten 二维网格按行优先展开
func Flatten(grid [][]int) []int {
	n := 0
	for _, row := range grid {
		n += len(row)
	}
	out := make([]int, 0, n)
	for _, row := range grid {
		out = append(out, row...)
	}
	return out
}

// Reconstruct 将一维序列切成 height 行、每行 width 个
func Reconstruct(data []int, width, height int) ([][]int, error) {
	if width < 1 || height < 1 || len(data) != width*height {
		return nil, fmt.Errorf("%w: len=%d width=%d height=%d", ErrShapeMismatch, len(data), width, height)
	}
	grid := make([][]int, height)
	for i := 0; i < height; i++ {
		row := make([]int, width)
		copy(row, data[i*width:(i+1)*width])
		grid[i] = row
	}
	return grid, nil
}

// Find 返回第一个等于 c 的格子
func Find(grid [][]int, c Cell) (Point, bool) {
	for y, row := range grid {
		for x, v := range row {
			if v == c {
				return Point{X: x, Y: y}, true
			}
		}
	}
	return Point{}, false
}
