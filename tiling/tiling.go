// Package tiling implements the tile enumerator (spec §4.2): generating
// candidate factorings of a multidimensional loop extent that respect
// vectorization and parallelism constraints.
package tiling

// Tilings generates candidate factor vectors for size, one factor per
// dimension, per spec §4.2.
//
// If allowSplits is false, only the two trivial tilings are produced: all
// ones, and the full extent on one dimension while the others stay one.
//
// If allowSplits is true, for each dimension the outer factors considered
// are powers of two ≤ size[d], plus the complementary set derived by
// varying the inner factor as a power of two; a factor is accepted only
// when the resulting inner factor is ≥ the outer factor (dimension 0,
// the innermost dimension, additionally requires inner ≥ vectorSize). The
// identity tiling (all ones) and the degenerate one-big-tile (outer = full
// extent) are skipped.
//
// Output ordering is stable and deterministic: the last dimension varies
// fastest and dimension 0 slowest.
func Tilings(size []int, allowSplits bool, vectorSize int) [][]int {
	d := len(size)
	if d == 0 {
		return nil
	}
	if vectorSize < 1 {
		vectorSize = 1
	}

	if !allowSplits {
		return trivialTilings(size)
	}

	perDim := make([][]int, d)
	for dim := 0; dim < d; dim++ {
		perDim[dim] = candidateFactors(size[dim], dim == 0, vectorSize)
	}

	var out [][]int
	combo := make([]int, d)
	var rec func(dim int)
	rec = func(dim int) {
		if dim == d {
			tiling := make([]int, d)
			copy(tiling, combo)
			if !isIdentity(tiling) && !isOneBigTile(tiling, size) {
				out = append(out, tiling)
			}
			return
		}
		for _, f := range perDim[dim] {
			combo[dim] = f
			rec(dim + 1)
		}
	}
	rec(0)
	return out
}

// trivialTilings returns: all-ones, plus one tiling per dimension with the
// full extent on that dimension and ones elsewhere.
func trivialTilings(size []int) [][]int {
	d := len(size)
	ones := make([]int, d)
	for i := range ones {
		ones[i] = 1
	}
	out := [][]int{append([]int(nil), ones...)}
	for dim := 0; dim < d; dim++ {
		t := append([]int(nil), ones...)
		t[dim] = size[dim]
		out = append(out, t)
	}
	return out
}

// candidateFactors returns the outer-factor candidates for one dimension of
// extent n: powers of two ≤ n, plus the complementary factors obtained by
// requiring the inner factor (n/outer, rounded) to itself be a power of
// two. A candidate outer factor f is kept only if its implied inner factor
// inner = ceilDiv(n, f) satisfies inner >= f (and, for the innermost
// dimension, inner >= vectorSize).
func candidateFactors(n int, innermost bool, vectorSize int) []int {
	if n <= 1 {
		return []int{1}
	}
	seen := make(map[int]bool)
	var out []int
	add := func(f int) {
		if f < 1 || f > n || seen[f] {
			return
		}
		inner := ceilDiv(n, f)
		if inner < f {
			return
		}
		if innermost && inner < vectorSize {
			return
		}
		seen[f] = true
		out = append(out, f)
	}

	for f := 1; f <= n; f *= 2 {
		add(f)
	}
	for innerPow := 1; innerPow <= n; innerPow *= 2 {
		add(ceilDiv(n, innerPow))
	}
	return out
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func isIdentity(t []int) bool {
	for _, f := range t {
		if f != 1 {
			return false
		}
	}
	return true
}

// isOneBigTile reports whether t places the entire extent of exactly one
// dimension as its outer factor while every other dimension is 1 — the
// degenerate "one big tile" skipped per spec §4.2.
func isOneBigTile(t, size []int) bool {
	nonOne := 0
	for i, f := range t {
		if f != 1 {
			nonOne++
			if f != size[i] {
				return false
			}
		}
	}
	return nonOne == 1
}
