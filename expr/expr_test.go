package expr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountLeaves_PlainLeaves(t *testing.T) {
	e := Select{
		Cond: Leaf{},
		T:    Leaf{},
		F:    Leaf{},
	}
	c := CountLeaves(e)
	require.Equal(t, 2, c.Leaves) // both arms; cond dropped, no likely tag
}

func TestCountLeaves_LikelyArmOnly(t *testing.T) {
	e := Select{
		Cond:    Leaf{},
		T:       Leaf{},
		F:       Min{A: Leaf{}, B: Leaf{}},
		TLikely: true,
	}
	c := CountLeaves(e)
	// cond (1) + T (1), F arm dropped because T is the likely one.
	require.Equal(t, 2, c.Leaves)
}

func TestCountLeaves_BothLikelyOrNeitherCountsBoth(t *testing.T) {
	e := Max{A: Leaf{}, B: Leaf{}, ALikely: true, BLikely: true}
	c := CountLeaves(e)
	require.Equal(t, 2, c.Leaves)
}

func TestCountLeaves_CallsTallyPerCallee(t *testing.T) {
	e := Select{
		Cond: Call{Callee: "f"},
		T:    Call{Callee: "g"},
		F:    Call{Callee: "g"},
	}
	c := CountLeaves(e)
	// No likely tag on either arm: cond is dropped entirely, so "f" is
	// never counted and only the two "g" arms contribute.
	require.Equal(t, 2, c.Leaves)
	require.Equal(t, 0, c.Calls["f"])
	require.Equal(t, 2, c.Calls["g"])
}

func TestCountLeaves_ExpensiveExternAddsHundred(t *testing.T) {
	e := Call{Callee: "sin", ExpensivePureExtern: true}
	c := CountLeaves(e)
	require.Equal(t, 101, c.Leaves)
}

func TestCountLeaves_LikelyDoesNotCrossCallBoundary(t *testing.T) {
	// A likely tag on a Select only affects this Select's own arms; the
	// callee's body is counted independently (it isn't present in the IR
	// here at all, demonstrating the boundary).
	e := Select{
		Cond:    Leaf{},
		T:       Call{Callee: "f"},
		F:       Call{Callee: "g"},
		TLikely: true,
	}
	c := CountLeaves(e)
	require.Equal(t, 2, c.Leaves) // cond + the single counted call to f
	require.Equal(t, 1, c.Calls["f"])
	require.Equal(t, 0, c.Calls["g"])
}
