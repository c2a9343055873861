package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

// SetOption writes key to section ("" for the global block) of the config
// file at path, leaving every other line as it was. An existing option line
// is replaced in place; a new one goes after the last option of its block.
// A missing section is appended. The file and its directory are created if
// needed.
func SetOption(path, section, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	entry := key
	if value != "" {
		entry += " " + value
	}

	var lines []string
	if s := strings.TrimSuffix(string(data), "\n"); s != "" {
		lines = strings.Split(s, "\n")
	}

	start, end, ok := findBlock(lines, section)
	if !ok {
		if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) != "" {
			lines = append(lines, "")
		}
		lines = append(lines, "["+section+"]", entry)
	} else {
		at, replace := end, false
		for at > start && strings.TrimSpace(lines[at-1]) == "" {
			at--
		}
		lastOption := -1
		for i := start; i < end; i++ {
			name, isOption := optionName(lines[i])
			if !isOption {
				continue
			}
			if name == key {
				at, replace = i, true
				break
			}
			lastOption = i
		}
		switch {
		case replace:
			lines[at] = entry
		case lastOption >= 0:
			lines = slices.Insert(lines, lastOption+1, entry)
		default:
			lines = slices.Insert(lines, at, entry)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return WriteFileAtomic(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

// findBlock returns the line range holding section's options. The global
// block runs from the top of the file to the first header.
func findBlock(lines []string, section string) (start, end int, ok bool) {
	start, ok = 0, section == ""
	for i, line := range lines {
		name, isHeader := headerName(line)
		if !isHeader {
			continue
		}
		if ok {
			return start, i, true
		}
		if name == section {
			start, ok = i+1, true
		}
	}
	return start, len(lines), ok
}

func headerName(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "[") || !strings.HasSuffix(t, "]") {
		return "", false
	}
	return strings.TrimSpace(t[1 : len(t)-1]), true
}

func optionName(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if t == "" || t[0] == '#' || t[0] == '[' {
		return "", false
	}
	if i := strings.IndexFunc(t, unicode.IsSpace); i >= 0 {
		t = t[:i]
	}
	return t, true
}

// WriteFileAtomic writes data to a temporary file beside path, syncs it, and
// renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, perm)
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}
