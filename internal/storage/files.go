// Package storage keeps the bot's flat-file records in the data directory:
// the command audit trail (stats.txt) and the ban enforcement log (kicks.txt).
package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

const maxEntries = 500

const (
	statsFile = "stats.txt"
	kicksFile = "kicks.txt"
)

// LoadKicks reads the enforcement log.
// Returns entries in reverse chronological order (newest first)
func LoadKicks(dataDir string) ([]string, error) {
	lines, err := load(dataDir, kicksFile)
	if err != nil {
		return nil, err
	}
	// File stores oldest first
	return reverse(lines), nil
}

// SaveKicks writes the enforcement log (max 500 entries).
// Expects entries newest first
func SaveKicks(dataDir string, kicks []string) error {
	if len(kicks) > maxEntries {
		kicks = kicks[:maxEntries]
	}
	return writeLines(filepath.Join(dataDir, kicksFile), reverse(kicks))
}

// AddKick prepends a new enforcement entry (keeping newest first in memory)
func AddKick(kicks []string, entry string) []string {
	kicks = append([]string{entry}, kicks...)
	if len(kicks) > maxEntries {
		kicks = kicks[:maxEntries]
	}
	return kicks
}

// LoadStats reads the command audit trail, oldest first
func LoadStats(dataDir string) ([]string, error) {
	return load(dataDir, statsFile)
}

// SaveStats writes the command audit trail (max 500 entries)
func SaveStats(dataDir string, stats []string) error {
	// Trim to max entries (keep newest at end)
	if len(stats) > maxEntries {
		stats = stats[len(stats)-maxEntries:]
	}
	return writeLines(filepath.Join(dataDir, statsFile), stats)
}

// AddStat appends a new audit entry
func AddStat(stats []string, entry string) []string {
	stats = append(stats, entry)
	if len(stats) > maxEntries {
		stats = stats[1:]
	}
	return stats
}

// EnsureDir creates the data directory if needed
func EnsureDir(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

func load(dataDir, name string) ([]string, error) {
	lines, err := readLines(filepath.Join(dataDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	return lines, nil
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func writeLines(path string, lines []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return w.Flush()
}

func reverse(s []string) []string {
	result := make([]string, len(s))
	for i, v := range s {
		result[len(s)-1-i] = v
	}
	return result
}
