package bounds

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimplify_ConstantFolding(t *testing.T) {
	e := Add{A: Mul{A: Const(2), B: Const(3)}, B: Const(1)}
	v, err := Simplify(e, nil)
	require.NoError(t, err)
	require.Equal(t, int64(7), v)
}

func TestSimplify_VarLookup(t *testing.T) {
	env := Env{"h.0.min": 10}
	v, err := Simplify(Var("h.0.min"), env)
	require.NoError(t, err)
	require.Equal(t, int64(10), v)
}

func TestSimplify_UnboundVariable(t *testing.T) {
	_, err := Simplify(Var("missing"), Env{})
	require.ErrorIs(t, err, ErrUnboundVariable)
}

func TestSimplify_MinMax(t *testing.T) {
	v, err := Simplify(Min{A: Const(5), B: Const(2)}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	v, err = Simplify(Max{A: Const(5), B: Const(2)}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(5), v)
}

func TestSimplifyRegion_ProducesConcretePoints(t *testing.T) {
	r := Region{
		{Min: Const(0), Max: Const(9)},
		{Min: Const(0), Max: Const(19)},
	}
	cr, err := SimplifyRegion(r, nil)
	require.NoError(t, err)
	require.Equal(t, int64(10), cr[0].Extent())
	require.Equal(t, int64(20), cr[1].Extent())
	require.Equal(t, int64(200), cr.Points())
}

func TestSimplifyRegion_FailsOnUnboundEndpoint(t *testing.T) {
	r := Region{{Min: Var("x.0.min"), Max: Const(9)}}
	_, err := SimplifyRegion(r, Env{})
	require.ErrorIs(t, err, ErrNotConstant)
}

func TestDimVars_NamingConvention(t *testing.T) {
	lo, hi := DimVars("h", 1)
	require.Equal(t, Var("h.1.min"), lo)
	require.Equal(t, Var("h.1.max"), hi)
}
