package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/resock/resock-go/pkg/log"
)

// RunFilter copies the records of path that match filter to output and
// returns how many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}

	count := 0
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = logger.Close()
			return count, fmt.Errorf("failed to read record: %w", err)
		}
		logger.Log(rec)
		count++
	}

	if err := logger.Close(); err != nil {
		return count, err
	}
	if n := logger.Dropped(); n > 0 {
		return count - n, fmt.Errorf("%d records could not be written", n)
	}
	return count, nil
}
