// Package sstable reads and writes immutable sorted tables. A table is a UTF-8
// text file named sst_<N>.txt holding one "key\tvalue\n" record per line,
// keys ascending. Only the first tab of a line separates key from value.
package sstable

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	filePrefix = "sst_"
	fileSuffix = ".txt"

	separator = '\t'
)

// Entry is a single key/value record of an SSTable.
type Entry struct {
	Key   string
	Value string
}

// FileName returns the on-disk name of the table with the given sequence number.
func FileName(seq uint64) string {
	return filePrefix + strconv.FormatUint(seq, 10) + fileSuffix
}

// Path joins dir and the file name of seq.
func Path(dir string, seq uint64) string {
	return filepath.Join(dir, FileName(seq))
}

// ParseFileName extracts the sequence number from a name like "sst_12.txt".
// Names with a sign, an empty number or any other character are rejected.
func ParseFileName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	token := name[len(filePrefix) : len(name)-len(fileSuffix)]
	if token == "" {
		return 0, false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return 0, false
		}
	}

	seq, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Write persists entries to path, one "key\tvalue\n" record per entry, in the
// given order. Callers pass entries sorted by key. An existing file is
// overwritten.
func Write(path string, entries []Entry) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create sstable %s: %w", path, err)
	}

	w := bufio.NewWriter(file)
	for _, e := range entries {
		if err := writeRecord(w, e); err != nil {
			file.Close()
			return fmt.Errorf("failed to write sstable record: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush sstable %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync sstable %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close sstable %s: %w", path, err)
	}

	return nil
}

// Sorted turns m into entries ordered by key.
func Sorted(m map[string]string) []Entry {
	entries := make([]Entry, 0, len(m))
	for k, v := range m {
		entries = append(entries, Entry{Key: k, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	return entries
}

func writeRecord(w *bufio.Writer, e Entry) error {
	if _, err := w.WriteString(e.Key); err != nil {
		return err
	}
	if err := w.WriteByte(separator); err != nil {
		return err
	}
	if _, err := w.WriteString(e.Value); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// Read parses the whole table at path into a map. A missing file yields an
// empty map.
func Read(path string) (map[string]string, error) {
	data := make(map[string]string)
	err := scan(path, func(key, value string) bool {
		data[key] = value
		return true
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

// Lookup scans the table at path for key and stops at the first match.
// A missing file is reported as a miss.
func Lookup(path, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := scan(path, func(k, v string) bool {
		if k == key {
			value, found = v, true
			return false
		}
		return true
	})
	if err != nil {
		return "", false, err
	}

	return value, found, nil
}

// Remove deletes the table at path. Removing a missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove sstable %s: %w", path, err)
	}
	return nil
}

// scan calls fn for every well-formed record until fn returns false.
// Lines may end in "\n" or "\r\n". Lines without a separator are skipped.
func scan(path string, fn func(key, value string) bool) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open sstable %s: %w", path, err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	for {
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read sstable %s: %w", path, err)
		}

		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		key, value, ok := strings.Cut(line, string(separator))
		if ok && !fn(key, value) {
			return nil
		}
		if err != nil {
			return nil
		}
	}
}
