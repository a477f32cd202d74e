package memtable

import (
	"strings"

	"lsmkv/pkg/sstable"

	"github.com/zhangyunhao116/skipmap"
)

type sortedSet = skipmap.FuncMap[string, string]

func newSortedSet() *sortedSet {
	return skipmap.NewFunc[string, string](func(a, b string) bool {
		return strings.Compare(a, b) < 0
	})
}

// sorted collects the set in ascending key order.
func sorted(s *sortedSet) []sstable.Entry {
	result := make([]sstable.Entry, 0, s.Len())
	s.Range(func(key string, value string) bool {
		result = append(result, sstable.Entry{Key: key, Value: value})
		return true
	})

	return result
}
