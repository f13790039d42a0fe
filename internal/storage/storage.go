package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"

	"github.com/bdougie/handcam/internal/models"
)

const batchSize = 10 // Number of records to batch write

// ResultsFile is the name of the JSON file records are appended to
const ResultsFile = "detections.json"

// Storage defines the interface for storing detection records
type Storage interface {
	// AddResult adds a single detection record
	AddResult(ctx context.Context, record models.DetectionRecord) error

	// Flush ensures all pending records are saved
	Flush() error
}

// fileStorage batches records and appends them to a JSON array on disk
type fileStorage struct {
	records     []models.DetectionRecord
	mu          sync.Mutex
	outputDir   string
	sessionName string
	logger      *slog.Logger

	create func(path string) (io.WriteCloser, error)
}

func createFile(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// NewStorage creates a storage manager writing to outputDir/sessionName/detections.json
func NewStorage(outputDir, sessionName string, logger *slog.Logger) Storage {
	return &fileStorage{
		outputDir:   outputDir,
		sessionName: sessionName,
		logger:      logger,
		create:      createFile,
	}
}

// Path returns the results file of a session
func Path(outputDir, sessionName string) string {
	return filepath.Join(outputDir, sessionName, ResultsFile)
}

// AddResult adds a record to the batch and flushes if the batch is full. A failed
// flush keeps the batch for the next attempt; logging it is left to the caller.
func (s *fileStorage) AddResult(ctx context.Context, record models.DetectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)

	if len(s.records) >= batchSize {
		return s.flush()
	}
	return nil
}

// Flush writes all pending records to disk
func (s *fileStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *fileStorage) flush() (err error) {
	if len(s.records) == 0 {
		return nil
	}

	path := Path(s.outputDir, s.sessionName)

	existing, err := Load(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	all := append(existing, s.records...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for results: %w", err)
	}

	file, err := s.create(path)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	err = json.NewEncoder(file).Encode(all)
	if err != nil {
		err = fmt.Errorf("failed to encode results: %w", err)
	}
	if cerr := file.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to close results file: %w", cerr))
	}
	if err != nil {
		return err
	}

	s.logger.Debug("flushed detection records", "count", len(s.records), "total", len(all))
	s.records = nil
	return nil
}

// Load reads the records saved at path
func Load(path string) ([]models.DetectionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []models.DetectionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal existing results: %w", err)
	}
	return records, nil
}
