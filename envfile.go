package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

type envEntry struct {
	Key   string
	Value string
}

// parseDotEnv reads KEY=VALUE lines in file order. Later duplicates replace
// the value of the first occurrence but keep its position.
func parseDotEnv(path string) ([]envEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out []envEntry
	index := make(map[string]int)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if key == "" {
			continue
		}
		if i, dup := index[key]; dup {
			out[i].Value = val
			continue
		}
		index[key] = len(out)
		out = append(out, envEntry{Key: key, Value: val})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
