package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"rugpullsim/internal/model"
)

// JsonlSink appends window metrics to a JSONL file, for runs without a
// database. Later rows for the same window supersede earlier ones.
type JsonlSink struct {
	path string
	mu   sync.Mutex
}

func NewJsonlSink(path string) *JsonlSink {
	return &JsonlSink{path: path}
}

func (s *JsonlSink) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open metrics output: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, m := range metrics {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("write window metrics: %w", err)
		}
	}
	return nil
}
