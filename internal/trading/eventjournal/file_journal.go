package eventjournal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileJournal appends order events to a file and rotates it by size.
type FileJournal struct {
	logger   *zap.Logger
	filePath string
	file     *os.File
	mu       sync.Mutex
	config   Config
}

// Config holds configuration for the event journal
type Config struct {
	FilePath     string
	MaxSizeBytes int64
	MaxBackups   int
	MaxAgeDays   int
	Enabled      bool
	// SyncEachWrite fsyncs after every event.
	SyncEachWrite bool
}

// DefaultConfig returns a default event journal configuration
func DefaultConfig() Config {
	return Config{
		FilePath:      "data/orderexec/events.log",
		MaxSizeBytes:  100 * 1024 * 1024, // 100MB
		MaxBackups:    10,
		MaxAgeDays:    30,
		Enabled:       true,
		SyncEachWrite: true,
	}
}

// NewFileJournal opens (or creates) the journal file for appending.
func NewFileJournal(config Config, logger *zap.Logger) (*FileJournal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "event_journal"))
	if !config.Enabled {
		return &FileJournal{logger: logger, config: config, filePath: config.FilePath}, nil
	}

	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	file, err := os.OpenFile(config.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal file: %w", err)
	}

	logger.Info("Event journal initialized", zap.String("file_path", config.FilePath))
	return &FileJournal{
		logger:   logger,
		filePath: config.FilePath,
		file:     file,
		config:   config,
	}, nil
}

func (j *FileJournal) Name() string { return "journal" }

// Publish journals an applied order event.
func (j *FileJournal) Publish(ctx context.Context, e *model.OrderEvent) error {
	return j.WriteEvent(ctx, newOrderWALEvent(e))
}

// WriteEvent appends one line and rotates the file once it is too large.
func (j *FileJournal) WriteEvent(ctx context.Context, event *WALEvent) error {
	if !j.config.Enabled {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return fmt.Errorf("event journal %s is closed", j.filePath)
	}
	if _, err := j.file.Write(data); err != nil {
		j.logger.Error("Failed to write event to journal", zap.Error(err))
		return fmt.Errorf("failed to write event: %w", err)
	}
	if j.config.SyncEachWrite {
		if err := j.file.Sync(); err != nil {
			j.logger.Error("Failed to sync journal to disk", zap.Error(err))
			return fmt.Errorf("failed to sync journal: %w", err)
		}
	}
	return j.rotateIfNeededLocked()
}

// WriteCheckpoint records the set of open orders, e.g. at shutdown.
func (j *FileJournal) WriteCheckpoint(ctx context.Context, openOrders []int) error {
	return j.WriteEvent(ctx, &WALEvent{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		EventType: EventTypeCheckpoint,
		Data:      openOrders,
	})
}

// Close syncs and closes the journal file.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		j.logger.Error("Failed to sync journal before close", zap.Error(err))
	}
	if err := j.file.Close(); err != nil {
		j.logger.Error("Failed to close journal file", zap.Error(err))
		return err
	}
	j.file = nil
	j.logger.Info("Event journal closed")
	return nil
}

// rotateIfNeededLocked rotates the log file when it becomes too large
func (j *FileJournal) rotateIfNeededLocked() error {
	if j.config.MaxSizeBytes <= 0 {
		return nil
	}
	stat, err := j.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat journal file: %w", err)
	}
	if stat.Size() < j.config.MaxSizeBytes {
		return nil
	}

	if err := j.file.Close(); err != nil {
		return fmt.Errorf("failed to close current journal file: %w", err)
	}
	j.file = nil

	backupPath := fmt.Sprintf("%s.%s", j.filePath, time.Now().UTC().Format("20060102-150405.000000000"))
	if err := os.Rename(j.filePath, backupPath); err != nil {
		return fmt.Errorf("failed to rotate journal file: %w", err)
	}
	file, err := os.OpenFile(j.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open new journal file: %w", err)
	}
	j.file = file
	j.logger.Info("Journal file rotated",
		zap.String("old_file", backupPath),
		zap.String("new_file", j.filePath))

	j.cleanupOldBackups()
	return nil
}

// backups returns the rotated files, oldest first.
func (j *FileJournal) backups() ([]string, error) {
	dir := filepath.Dir(j.filePath)
	prefix := filepath.Base(j.filePath) + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			names = append(names, entry.Name())
		}
	}
	// the timestamp suffix sorts chronologically
	sort.Strings(names)
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// cleanupOldBackups removes backups beyond MaxBackups or older than MaxAgeDays
func (j *FileJournal) cleanupOldBackups() {
	paths, err := j.backups()
	if err != nil {
		j.logger.Error("Failed to read journal directory for cleanup", zap.Error(err))
		return
	}

	cutoff := time.Now().AddDate(0, 0, -j.config.MaxAgeDays)
	excess := 0
	if j.config.MaxBackups > 0 && len(paths) > j.config.MaxBackups {
		excess = len(paths) - j.config.MaxBackups
	}
	for i, path := range paths {
		remove := i < excess
		if !remove && j.config.MaxAgeDays > 0 {
			if info, err := os.Stat(path); err == nil && info.ModTime().Before(cutoff) {
				remove = true
			}
		}
		if !remove {
			continue
		}
		if err := os.Remove(path); err != nil {
			j.logger.Error("Failed to remove old backup file", zap.Error(err), zap.String("file", path))
		} else {
			j.logger.Info("Removed old backup file", zap.String("file", path))
		}
	}
}

// ReplayEvents replays the backups and then the current file, in order.
func (j *FileJournal) ReplayEvents(ctx context.Context, handler ReplayHandler) error {
	if !j.config.Enabled {
		j.logger.Info("Journal is disabled, no events to replay")
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	paths, err := j.backups()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to list journal backups: %w", err)
	}
	paths = append(paths, j.filePath)

	stopped := false
	for _, path := range paths {
		if stopped {
			break
		}
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to open journal file for replay: %w", err)
		}
		j.logger.Info("Starting event replay from file journal", zap.String("path", path))
		err = replay(ctx, file, j.logger, func(e *WALEvent) (bool, error) {
			ok, err := handler(e)
			if !ok {
				stopped = true
			}
			return ok, err
		})
		file.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// ReplayEventsFromTime replays events journaled after fromTime.
func (j *FileJournal) ReplayEventsFromTime(ctx context.Context, fromTime time.Time, handler ReplayHandler) error {
	return j.ReplayEvents(ctx, func(e *WALEvent) (bool, error) {
		if !e.Timestamp.After(fromTime) {
			return true, nil
		}
		return handler(e)
	})
}

// ReplayPending returns the last journaled event of every order whose last
// known status was still open, ordered by order id.
func (j *FileJournal) ReplayPending(ctx context.Context) ([]*model.OrderEvent, error) {
	last := make(map[int]*model.OrderEvent)
	err := j.ReplayEvents(ctx, func(e *WALEvent) (bool, error) {
		if e.EventType != EventTypeOrderEvent || e.Event == nil {
			return true, nil
		}
		last[e.OrderID] = e.Event
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	pending := make([]*model.OrderEvent, 0)
	for _, e := range last {
		if e.Status.IsOpen() {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(a, b int) bool { return pending[a].OrderID < pending[b].OrderID })
	return pending, nil
}
