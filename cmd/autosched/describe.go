package main

import (
	"fmt"

	"github.com/arrayforge/autosched/materialize"
)

// describeDirective renders one materialize.Directive in the same
// parenthesized-call shape spec §6 names each directive after, so the
// printed schedule reads like the directive grammar it implements.
func describeDirective(d materialize.Directive) string {
	switch v := d.(type) {
	case materialize.SplitDirective:
		return fmt.Sprintf("split(%s.%s, %s, %s, %d, %s)", v.Func, v.Var, v.Outer, v.Inner, v.Factor, v.Tail)
	case materialize.ReorderDirective:
		return fmt.Sprintf("reorder(%s, %v)", v.Func, v.Vars)
	case materialize.VectorizeDirective:
		return fmt.Sprintf("vectorize(%s.%s, %d)", v.Func, v.Var, v.Width)
	case materialize.ComputeRootDirective:
		return fmt.Sprintf("compute_root(%s)", v.Func)
	case materialize.ComputeAtDirective:
		return fmt.Sprintf("compute_at(%s, %s, %s)", v.Func, v.Parent, v.Var)
	case materialize.StoreAtDirective:
		return fmt.Sprintf("store_at(%s, %s, %s)", v.Func, v.Parent, v.Var)
	case materialize.ParallelDirective:
		if v.TaskSize > 0 {
			return fmt.Sprintf("parallel(%s.%s, %d)", v.Func, v.Var, v.TaskSize)
		}
		return fmt.Sprintf("parallel(%s.%s)", v.Func, v.Var)
	case materialize.FuseDirective:
		return fmt.Sprintf("fuse(%s.%s, %s.%s, %s)", v.Func, v.Inner, v.Func, v.Outer, v.Fused)
	default:
		return fmt.Sprintf("%+v", d)
	}
}
