package client

import "math"

// Transform 渲染侧使用的位置与朝向
type Transform struct {
	X         float64
	Y         float64
	Z         float64
	RotationY float64
}

// Lerp 线性插值
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// NormalizeAngle 将角度归一化到 (-π, π]
func NormalizeAngle(d float64) float64 {
	r := math.Mod(math.Pi-d, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	return math.Pi - r
}

// LerpAngle 沿较短的弧线插值，结果归一化到 (-π, π]
func LerpAngle(a, b, t float64) float64 {
	return NormalizeAngle(a + NormalizeAngle(b-a)*t)
}

// Step 将 cur 向 target 推进 alpha 比例
func Step(cur, target Transform, alpha float64) Transform {
	return Transform{
		X:         Lerp(cur.X, target.X, alpha),
		Y:         Lerp(cur.Y, target.Y, alpha),
		Z:         Lerp(cur.Z, target.Z, alpha),
		RotationY: LerpAngle(cur.RotationY, target.RotationY, alpha),
	}
}
