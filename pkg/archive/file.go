package archive

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"
)

// FileRecorder appends one JSON document per line.
type FileRecorder struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

func NewFileRecorder(path string) (*FileRecorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("unable to open archive %s: %w", path, err)
	}
	return &FileRecorder{file: file, writer: bufio.NewWriter(file)}, nil
}

func (r *FileRecorder) Record(_ context.Context, record Record) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("unable to encode record %s: %w", record.SessionId, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return os.ErrClosed
	}
	if _, err := r.writer.Write(append(line, '\n')); err != nil {
		return err
	}
	return r.writer.Flush()
}

func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	flushErr := r.writer.Flush()
	closeErr := r.file.Close()
	r.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// ReadFile loads every record of a JSON lines archive.
func ReadFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("invalid archive line %d: %w", len(records)+1, err)
		}
		records = append(records, record)
	}
	return records, scanner.Err()
}
