package maze

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Cell 地图格子编码（封闭集合，与线上协议一致）
type Cell = int

const (
	Open     Cell = 0
	Wall     Cell = 1
	Platform Cell = 2
	Start    Cell = 3
	Goal     Cell = 4
)

// MinDimension 最小宽高：需要至少两个奇数坐标的内部格子
const MinDimension = 5

// DefaultMaxAttempts 起点/终点重新采样的上限
const DefaultMaxAttempts = 1000

var (
	ErrInvalidDimensions = errors.New("maze: invalid dimensions")
	ErrGenerationFailed  = errors.New("maze: could not place start and goal far enough apart")
	ErrShapeMismatch     = errors.New("maze: data does not match width*height")
)

// IsValidCell 判断编码是否属于封闭集合
func IsValidCell(c int) bool {
	return c >= Open && c <= Goal
}

// Point 网格坐标，X 为列，Y 为行
type Point struct {
	X int
	Y int
}

// Manhattan 曼哈顿距离
func (p Point) Manhattan(o Point) int {
	return abs(p.X-o.X) + abs(p.Y-o.Y)
}

// Maze 生成结果：行优先二维网格 + 起点终点
type Maze struct {
	Grid   [][]int
	Width  int
	Height int
	Start  Point
	Goal   Point
}

// Flatten 按行展开为一维序列，便于上传
func (m *Maze) Flatten() []int {
	return Flatten(m.Grid)
}

// String 调试用 ASCII 渲染
func (m *Maze) String() string {
	var b strings.Builder
	for _, row := range m.Grid {
		for _, c := range row {
			switch c {
			case Wall:
				b.WriteByte('#')
			case Platform:
				b.WriteByte('=')
			case Start:
				b.WriteByte('S')
			case Goal:
				b.WriteByte('G')
			default:
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Generator 随机深度优先（回溯）迷宫生成器
type Generator struct {
	rng         *rand.Rand
	maxAttempts int
}

// NewGenerator 使用给定随机源创建生成器；固定种子可复现
func NewGenerator(src rand.Source) *Generator {
	return &Generator{rng: rand.New(src), maxAttempts: DefaultMaxAttempts}
}

// WithMaxAttempts 调整起点/终点采样次数上限
func (g *Generator) WithMaxAttempts(n int) *Generator {
	if n > 0 {
		g.maxAttempts = n
	}
	return g
}

// Generate 生成 width×height 迷宫：全墙填充 → 选起点终点 → 从起点雕刻通道 → 标记 3/4
func (g *Generator) Generate(width, height int) (*Maze, error) {
	if width < MinDimension || height < MinDimension {
		return nil, fmt.Errorf("%w: %dx%d, need at least %dx%d", ErrInvalidDimensions, width, height, MinDimension, MinDimension)
	}
	cols, rows := oddSlots(width), oddSlots(height)
	// 奇数格中最远的一对也达不到距离要求时，重采样永远不会成功
	minDist := float64(max(width, height)) / 2
	if float64(2*(cols-1)+2*(rows-1)) < minDist {
		return nil, fmt.Errorf("%w: %dx%d cannot separate start and goal by %.1f", ErrInvalidDimensions, width, height, minDist)
	}

	grid := make([][]int, height)
	for y := range grid {
		grid[y] = make([]int, width)
		for x := range grid[y] {
			grid[y][x] = Wall
		}
	}

	var start, goal Point
	placed := false
	for i := 0; i < g.maxAttempts; i++ {
		start = g.randomOddPoint(cols, rows)
		goal = g.randomOddPoint(cols, rows)
		if float64(start.Manhattan(goal)) >= minDist {
			placed = true
			break
		}
	}
	if !placed {
		return nil, fmt.Errorf("%w after %d attempts (%dx%d)", ErrGenerationFailed, g.maxAttempts, width, height)
	}

	g.carve(grid, start, width, height)

	grid[start.Y][start.X] = Start
	grid[goal.Y][goal.X] = Goal

	return &Maze{Grid: grid, Width: width, Height: height, Start: start, Goal: goal}, nil
}

// 四个 2 步方向：北、南、东、西
var steps = [4]Point{{0, -2}, {0, 2}, {2, 0}, {-2, 0}}

type frame struct {
	at   Point
	dirs [4]Point
	next int
}

// carve 显式栈实现的递归回溯：每个格子进入时洗牌一次方向，按洗牌顺序逐个访问
func (g *Generator) carve(grid [][]int, from Point, width, height int) {
	visited := make([]bool, width*height)
	enter := func(p Point) frame {
		f := frame{at: p, dirs: steps}
		for i := len(f.dirs) - 1; i > 0; i-- {
			j := g.rng.Intn(i + 1)
			f.dirs[i], f.dirs[j] = f.dirs[j], f.dirs[i]
		}
		visited[p.Y*width+p.X] = true
		grid[p.Y][p.X] = Open
		return f
	}

	stack := []frame{enter(from)}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next == len(top.dirs) {
			stack = stack[:len(stack)-1]
			continue
		}
		d := top.dirs[top.next]
		top.next++

		n := Point{top.at.X + d.X, top.at.Y + d.Y}
		if n.X <= 0 || n.X >= width-1 || n.Y <= 0 || n.Y >= height-1 || visited[n.Y*width+n.X] {
			continue
		}
		grid[top.at.Y+d.Y/2][top.at.X+d.X/2] = Open
		stack = append(stack, enter(n))
	}
}

// randomOddPoint 在奇数坐标的内部格子中均匀取点
func (g *Generator) randomOddPoint(cols, rows int) Point {
	return Point{X: 1 + 2*g.rng.Intn(cols), Y: 1 + 2*g.rng.Intn(rows)}
}

// oddSlots 满足 1 <= v <= n-2 的奇数个数
func oddSlots(n int) int {
	return (n - 1) / 2
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
