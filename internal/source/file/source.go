// Package file implements a message source reading alert dumps from JSONL files.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"reportwatch/internal/watch"
)

// Config locates the alert dump.
type Config struct {
	// Path points at a JSONL file with one AlertMessage object per line.
	Path string `mapstructure:"path"`
}

// Source reads alert messages from a JSONL dump. Lines that fail to parse
// are skipped; the dump is an export, not a source of truth.
type Source struct {
	path string
}

// New constructs a Source.
func New(cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("source.path is required")
	}
	return &Source{path: cfg.Path}, nil
}

// ListMessages returns messages matching the filter in file order.
func (s *Source) ListMessages(ctx context.Context, filter watch.MessageFilter) ([]watch.AlertMessage, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open alert dump: %w", err)
	}
	defer f.Close()

	var messages []watch.AlertMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg watch.AlertMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.ID == "" {
			continue
		}
		if !filter.Since.IsZero() && msg.ReceivedAt.Before(filter.Since) {
			continue
		}
		messages = append(messages, msg)
		if filter.Limit > 0 && len(messages) >= filter.Limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read alert dump: %w", err)
	}
	return messages, nil
}
