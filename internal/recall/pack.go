package recall

import (
	"strings"

	"contextcache/internal/types"
)

// packOrder fixes the section order of the rendered pack. Types not listed
// here are appended after, in the order they first appear in the results.
var packOrder = []types.MemoryType{
	types.TypeDecision,
	types.TypeDefinition,
	types.TypeFinding,
	types.TypeTodo,
	types.TypeCode,
	types.TypeDoc,
	types.TypeLink,
	types.TypeNote,
}

// BuildPack renders ranked memories as the deterministic plaintext block
// agents paste into their context. Memories are grouped by type; within a
// group the ranked order is preserved.
func BuildPack(query string, memories []types.Memory) string {
	groups := make(map[types.MemoryType][]string)
	var extraOrder []types.MemoryType
	known := make(map[types.MemoryType]bool, len(packOrder))
	for _, t := range packOrder {
		known[t] = true
	}

	for _, m := range memories {
		if _, seen := groups[m.Type]; !seen && !known[m.Type] {
			extraOrder = append(extraOrder, m.Type)
		}
		groups[m.Type] = append(groups[m.Type], m.Content)
	}

	var b strings.Builder
	b.WriteString("PROJECT MEMORY PACK\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n")

	writeGroup := func(t types.MemoryType) {
		contents, ok := groups[t]
		if !ok {
			return
		}
		b.WriteString("\n")
		b.WriteString(strings.ToUpper(string(t)))
		b.WriteString(":\n")
		for _, c := range contents {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteString("\n")
		}
	}

	for _, t := range packOrder {
		writeGroup(t)
	}
	for _, t := range extraOrder {
		writeGroup(t)
	}
	return b.String()
}
