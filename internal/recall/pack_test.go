package recall

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"contextcache/internal/types"
)

func TestBuildPack_GroupsInFixedOrder(t *testing.T) {
	memories := []types.Memory{
		{Type: types.TypeNote, Content: "a note"},
		{Type: types.TypeDecision, Content: "use sqlite"},
		{Type: types.TypeFinding, Content: "fts beats like"},
		{Type: types.TypeDecision, Content: "ship friday"},
	}

	pack := BuildPack("storage choice", memories)

	want := "PROJECT MEMORY PACK\n" +
		"Query: storage choice\n" +
		"\nDECISION:\n- use sqlite\n- ship friday\n" +
		"\nFINDING:\n- fts beats like\n" +
		"\nNOTE:\n- a note\n"
	assert.Equal(t, want, pack)
}

func TestBuildPack_UnknownTypesAppended(t *testing.T) {
	memories := []types.Memory{
		{Type: types.TypeWeb, Content: "scraped page"},
		{Type: types.TypeNote, Content: "a note"},
		{Type: types.TypeEvent, Content: "deploy happened"},
	}

	pack := BuildPack("q", memories)

	// Known section first, then the unlisted types in first-seen order.
	assert.Regexp(t, `(?s)NOTE:.*WEB:.*EVENT:`, pack)
}

func TestBuildPack_Deterministic(t *testing.T) {
	memories := []types.Memory{
		{Type: types.TypeDecision, Content: "x"},
		{Type: types.TypeTodo, Content: "y"},
	}
	assert.Equal(t, BuildPack("q", memories), BuildPack("q", memories))
}

func TestBuildPack_Empty(t *testing.T) {
	assert.Equal(t, "PROJECT MEMORY PACK\nQuery: q\n", BuildPack("q", nil))
}
