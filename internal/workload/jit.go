package workload

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/utkarsh5026/helperpool/internal/arena"
)

// irNodeSize is the arena footprint of one synthetic IR node.
const irNodeSize = 32

// CompileIR returns a JIT body that builds nodes IR nodes in the task's
// arena and runs a folding pass over them. It matches
// helper.JitCompileFunc.
func CompileIR(nodes int) func(ctx context.Context, a *arena.Arena) error {
	return func(ctx context.Context, a *arena.Arena) error {
		graph := make([][]byte, 0, nodes)
		for i := range nodes {
			if i%scanCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			n, err := a.Alloc(irNodeSize)
			if err != nil {
				return fmt.Errorf("ir node %d: %w", i, err)
			}
			binary.LittleEndian.PutUint64(n, uint64(i))
			if i > 0 {
				// Each node points at its predecessor.
				binary.LittleEndian.PutUint64(n[8:], uint64(i-1))
			}
			graph = append(graph, n)
		}

		// Constant-fold adjacent pairs.
		for i := 1; i < len(graph); i++ {
			prev := binary.LittleEndian.Uint64(graph[i-1])
			cur := binary.LittleEndian.Uint64(graph[i])
			binary.LittleEndian.PutUint64(graph[i][16:], prev+cur)
		}
		return nil
	}
}

// ArenaSizeFor returns an arena size large enough for CompileIR(nodes).
func ArenaSizeFor(nodes int) int {
	return max(nodes*irNodeSize, 4096)
}
