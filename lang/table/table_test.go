package table_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/embervm/lang/bytecode"
	"github.com/mna/embervm/lang/table"
)

func str(chars string) *bytecode.String {
	return &bytecode.String{Chars: chars, Hash: fnv1a(chars)}
}

func fnv1a(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func TestSetGetDelete(t *testing.T) {
	tbl := table.New()
	a, b := str("a"), str("b")

	_, ok := tbl.Get(a)
	require.False(t, ok)

	require.True(t, tbl.Set(a, bytecode.Number(1)))
	require.False(t, tbl.Set(a, bytecode.Number(2)), "re-setting an existing key is not a new insertion")

	v, ok := tbl.Get(a)
	require.True(t, ok)
	require.Equal(t, bytecode.Number(2), v)

	require.Equal(t, 1, tbl.Len())

	require.True(t, tbl.Set(b, bytecode.Number(3)))
	require.Equal(t, 2, tbl.Len())

	require.True(t, tbl.Delete(a))
	require.False(t, tbl.Delete(a), "deleting twice reports absent the second time")
	require.Equal(t, 1, tbl.Len())

	_, ok = tbl.Get(a)
	require.False(t, ok)

	v, ok = tbl.Get(b)
	require.True(t, ok)
	require.Equal(t, bytecode.Number(3), v)
}

func TestTombstoneAllowsProbingPastDeletion(t *testing.T) {
	tbl := table.New()
	// Insert 20 distinct keys, then delete every other one so tombstones sit
	// among live entries; the key behavior under test is that deleting an
	// entry that a later key's probe sequence passes through does not break
	// lookup of that later key.
	keys := make([]*bytecode.String, 0, 20)
	for i := 0; i < 20; i++ {
		keys = append(keys, str(string(rune('a'+i))))
	}
	for i, k := range keys {
		tbl.Set(k, bytecode.Number(float64(i)))
	}
	// delete every other key, creating tombstones interleaved with live ones
	for i := 0; i < len(keys); i += 2 {
		require.True(t, tbl.Delete(keys[i]))
	}
	for i, k := range keys {
		v, ok := tbl.Get(k)
		if i%2 == 0 {
			require.False(t, ok)
		} else {
			require.True(t, ok)
			require.Equal(t, bytecode.Number(float64(i)), v)
		}
	}
}

func TestGrowResizeKeepsAllLiveEntries(t *testing.T) {
	tbl := table.New()
	const n = 200
	keys := make([]*bytecode.String, n)
	for i := 0; i < n; i++ {
		keys[i] = str(string(rune('!' + i)))
		tbl.Set(keys[i], bytecode.Number(float64(i)))
	}
	require.Equal(t, n, tbl.Len())
	for i, k := range keys {
		v, ok := tbl.Get(k)
		require.True(t, ok)
		require.Equal(t, bytecode.Number(float64(i)), v)
	}
}

func TestEachVisitsOnlyLiveEntries(t *testing.T) {
	tbl := table.New()
	a, b, c := str("a"), str("b"), str("c")
	tbl.Set(a, bytecode.Number(1))
	tbl.Set(b, bytecode.Number(2))
	tbl.Set(c, bytecode.Number(3))
	tbl.Delete(b)

	seen := map[string]bool{}
	tbl.Each(func(key *bytecode.String, val bytecode.Value) bool {
		seen[key.Chars] = true
		return true
	})
	require.Equal(t, map[string]bool{"a": true, "c": true}, seen)
}

func TestFindString(t *testing.T) {
	tbl := table.New()
	a := str("hello")
	tbl.Set(a, bytecode.Nil)

	got := tbl.FindString("hello", fnv1a("hello"))
	require.Same(t, a, got)

	require.Nil(t, tbl.FindString("goodbye", fnv1a("goodbye")))
}
