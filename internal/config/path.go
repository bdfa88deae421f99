package config

import (
	"strconv"
	"strings"
)

// splitPath turns "agents.defaults.maxTurns" into ["agents","defaults","maxTurns"].
// A segment of the form "list[3]" is split further into "list", "3" so callers
// can index into array values.
func splitPath(path string) []string {
	var segs []string
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		for {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				segs = append(segs, part)
				break
			}
			if open > 0 {
				segs = append(segs, part[:open])
			}
			close := strings.IndexByte(part[open:], ']')
			if close < 0 {
				segs = append(segs, part[open+1:])
				break
			}
			segs = append(segs, part[open+1:open+close])
			part = part[open+close+1:]
			if part == "" {
				break
			}
		}
	}
	return segs
}

// getPath walks tree along path, returning (value, true) on a full match.
func getPath(tree map[string]any, path string) (any, bool) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return tree, true
	}
	var cur any = tree
	for _, seg := range segs {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// setPath walks tree along path, creating intermediate maps as needed, and
// assigns value at the leaf. Array segments are only honored when the
// existing node at that point is already a []any; otherwise a map key
// named by the numeric segment is created (matches JSON object semantics,
// since config trees are loaded as maps, not typed arrays, except for
// pre-existing list values).
func setPath(tree map[string]any, path string, value any) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return
	}
	node := tree
	for i, seg := range segs {
		last := i == len(segs)-1
		if last {
			node[seg] = value
			return
		}
		next, ok := node[seg]
		if !ok {
			m := make(map[string]any)
			node[seg] = m
			node = m
			continue
		}
		switch n := next.(type) {
		case map[string]any:
			node = n
		case []any:
			idx, err := strconv.Atoi(segs[i+1])
			if err == nil && idx >= 0 && idx < len(n) {
				if sub, ok := n[idx].(map[string]any); ok {
					node = sub
					// consume the index segment by advancing i via recursion
					setPath(sub, strings.Join(segs[i+2:], "."), value)
					return
				}
			}
			return
		default:
			m := make(map[string]any)
			node[seg] = m
			node = m
		}
	}
}
