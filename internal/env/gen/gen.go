package gen

// FloorDiv divides rounding toward negative infinity. b > 0.
func FloorDiv(a, b int) int {
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

// Mod returns a non-negative remainder. b > 0.
func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// lattice returns a value in [0,1) for a grid corner.
func lattice(seed int64, gx, gz int) float64 {
	return float64(Hash2(seed, gx, gz)%1024) / 1024
}

func smooth(t float64) float64 { return t * t * (3 - 2*t) }

// ValueNoise2 is bilinear value noise over a square grid, in [0,1).
func ValueNoise2(seed int64, x, z, grid int) float64 {
	if grid <= 0 {
		grid = 1
	}
	gx := FloorDiv(x, grid)
	gz := FloorDiv(z, grid)
	tx := smooth(float64(Mod(x, grid)) / float64(grid))
	tz := smooth(float64(Mod(z, grid)) / float64(grid))

	a := lattice(seed, gx, gz)
	b := lattice(seed, gx+1, gz)
	c := lattice(seed, gx, gz+1)
	d := lattice(seed, gx+1, gz+1)
	top := a + (b-a)*tx
	bot := c + (d-c)*tx
	return top + (bot-top)*tz
}

// ColumnHeight is the terrain surface height at (x,z), clamped to [1,maxHeight-1].
func ColumnHeight(seed int64, x, z, base, amplitude, maxHeight int) int {
	n := 0.65*ValueNoise2(seed, x, z, 32) + 0.35*ValueNoise2(seed+17, x, z, 8)
	h := base + int(n*float64(amplitude))
	if h < 1 {
		h = 1
	}
	if h > maxHeight-1 {
		h = maxHeight - 1
	}
	return h
}

func ClampPermille(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}

// InCluster reports whether (x,z) falls inside a hashed circular cluster on a
// grid of cells, each holding a cluster with probability probPermille.
func InCluster(seed int64, x, z, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := FloorDiv(x, grid)
	gz := FloorDiv(z, grid)
	r2 := radius * radius

	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgz := gz + dz
			h := Hash2(seed, cgx, cgz)
			if h%1000 >= probPermille {
				continue
			}

			ox := int((h >> 10) % uint64(grid))
			oz := int((h >> 20) % uint64(grid))
			cx := cgx*grid + ox
			cz := cgz*grid + oz

			ddx := x - cx
			ddz := z - cz
			if ddx*ddx+ddz*ddz <= r2 {
				return true
			}
		}
	}
	return false
}
