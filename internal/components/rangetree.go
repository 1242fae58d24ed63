package components

import (
	"cmp"
	"slices"

	"github.com/eleven-am/fwmatch/internal/domain"
)

const noNode int32 = -1

type treeNode struct {
	mid     uint32
	byStart []domain.Rule // ascending StartIP
	byEnd   []domain.Rule // descending EndIP
	left    int32
	right   int32
}

// RangeTree is a centered interval tree over rule IP ranges. Nodes live in a
// single slice and reference their children by index.
//
// Every rule held by a node straddles the node's mid. Rules entirely below mid
// are in the left subtree and rules entirely above it in the right subtree.
type RangeTree struct {
	nodes []treeNode
	root  int32
	rules int
}

type TreeShape struct {
	Nodes    int
	Depth    int
	Rules    int
	MaxWidth int
}

type buildTask struct {
	rules  []domain.Rule
	parent int32
	right  bool
}

func NewRangeTree(rules []domain.Rule) *RangeTree {
	sorted := slices.Clone(rules)
	slices.SortFunc(sorted, compareRules)

	t := &RangeTree{root: noNode, rules: len(sorted)}
	if len(sorted) == 0 {
		return t
	}
	t.nodes = make([]treeNode, 0, len(sorted)/2+1)

	stack := []buildTask{{rules: sorted, parent: noNode}}
	for len(stack) > 0 {
		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx := t.addNode(task.rules)
		switch {
		case task.parent == noNode:
			t.root = idx
		case task.right:
			t.nodes[task.parent].right = idx
		default:
			t.nodes[task.parent].left = idx
		}

		left, right := t.partitionChildren(idx, task.rules)
		if len(right) > 0 {
			stack = append(stack, buildTask{rules: right, parent: idx, right: true})
		}
		if len(left) > 0 {
			stack = append(stack, buildTask{rules: left, parent: idx})
		}
	}
	return t
}

// addNode appends a node for a non-empty start-sorted rule set and fills its
// straddling rules. Subsets handed to children keep the start order.
func (t *RangeTree) addNode(sorted []domain.Rule) int32 {
	mid := sorted[len(sorted)/2].StartIP

	var straddling []domain.Rule
	for _, r := range sorted {
		if r.EndIP >= mid && r.StartIP <= mid {
			straddling = append(straddling, r)
		}
	}

	byEnd := slices.Clone(straddling)
	slices.SortStableFunc(byEnd, func(a, b domain.Rule) int {
		return cmp.Compare(b.EndIP, a.EndIP)
	})

	t.nodes = append(t.nodes, treeNode{
		mid:     mid,
		byStart: straddling,
		byEnd:   byEnd,
		left:    noNode,
		right:   noNode,
	})
	return int32(len(t.nodes) - 1)
}

func (t *RangeTree) partitionChildren(idx int32, sorted []domain.Rule) (left, right []domain.Rule) {
	mid := t.nodes[idx].mid
	for _, r := range sorted {
		switch {
		case r.EndIP < mid:
			left = append(left, r)
		case r.StartIP > mid:
			right = append(right, r)
		}
	}
	return left, right
}

// Contains reports whether any rule covers (ip, port). When ip equals a
// node's mid and no rule at that node matches, the search ends there: rules
// in either subtree cannot contain mid.
func (t *RangeTree) Contains(ip uint32, port uint16) bool {
	i := t.root
	for i != noNode {
		n := &t.nodes[i]
		if ip < n.mid {
			for _, r := range n.byStart {
				if r.StartIP > ip {
					break
				}
				if r.ContainsPort(port) {
					return true
				}
			}
			i = n.left
			continue
		}

		for _, r := range n.byEnd {
			if r.EndIP < ip {
				break
			}
			if r.ContainsPort(port) {
				return true
			}
		}
		if ip == n.mid {
			return false
		}
		i = n.right
	}
	return false
}

func (t *RangeTree) Len() int {
	return t.rules
}

// Walk visits nodes in pre-order. Returning false from fn stops the walk.
func (t *RangeTree) Walk(fn func(depth int, mid uint32, width int) bool) {
	if t.root == noNode {
		return
	}
	type frame struct {
		idx   int32
		depth int
	}
	stack := []frame{{idx: t.root, depth: 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[f.idx]
		if !fn(f.depth, n.mid, len(n.byStart)) {
			return
		}
		if n.right != noNode {
			stack = append(stack, frame{idx: n.right, depth: f.depth + 1})
		}
		if n.left != noNode {
			stack = append(stack, frame{idx: n.left, depth: f.depth + 1})
		}
	}
}

func (t *RangeTree) Shape() TreeShape {
	shape := TreeShape{Nodes: len(t.nodes), Rules: t.rules}
	t.Walk(func(depth int, _ uint32, width int) bool {
		shape.Depth = max(shape.Depth, depth)
		shape.MaxWidth = max(shape.MaxWidth, width)
		return true
	})
	return shape
}
