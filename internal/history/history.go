// Package history keeps an audit log of tool calls: what the model asked to
// run, what the operator decided and how the execution ended.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Decision values stored in ExecutionEntry.Decision.
const (
	DecisionApproved           = "approved"
	DecisionApprovedForSession = "approved_for_session"
	DecisionDenied             = "denied"
)

type HistoryManager struct {
	db *gorm.DB
}

type ExecutionEntry struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time `gorm:"index"`

	RequestID string `gorm:"index"`
	Tool      string `gorm:"index"`
	Arguments string
	Decision  string
	Directory string

	ExitCode   sql.NullInt32
	DurationMs int64
	Error      string
	Finished   bool
}

// Succeeded reports whether the call ran and ended without error or a
// non-zero exit code.
func (e *ExecutionEntry) Succeeded() bool {
	if !e.Finished || e.Error != "" {
		return false
	}
	return !e.ExitCode.Valid || e.ExitCode.Int32 == 0
}

const (
	historySchemaVersion = 1
)

func NewHistoryManager(dbFilePath string) (*HistoryManager, error) {
	dbFileExists := true
	if _, err := os.Stat(dbFilePath); errors.Is(err, os.ErrNotExist) {
		dbFileExists = false
	} else if err != nil {
		return nil, fmt.Errorf("error checking history db: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("error opening history database: %w", err)
	}

	versionPath := schemaVersionPath(dbFilePath)
	if needsMigration(dbFileExists, db, versionPath) {
		if err := db.AutoMigrate(&ExecutionEntry{}); err != nil {
			return nil, fmt.Errorf("error auto-migrating history schema: %w", err)
		}
		if err := writeSchemaVersion(versionPath, historySchemaVersion); err != nil {
			return nil, fmt.Errorf("error writing history schema version: %w", err)
		}
	}

	return &HistoryManager{
		db: db,
	}, nil
}

func needsMigration(dbFileExists bool, db *gorm.DB, versionPath string) bool {
	if !dbFileExists {
		return true
	}

	versionMatches, err := schemaVersionMatches(versionPath)
	if err != nil || !versionMatches {
		return true
	}

	// If the version marker is present but the table is missing (corruption or manual deletion),
	// re-run migrations to restore the schema.
	return !db.Migrator().HasTable(&ExecutionEntry{})
}

func writeSchemaVersion(versionPath string, version int) error {
	return os.WriteFile(versionPath, []byte(strconv.Itoa(version)), 0644)
}

func schemaVersionMatches(versionPath string) (bool, error) {
	data, err := os.ReadFile(versionPath)
	if err != nil {
		return false, err
	}
	trimmed := strings.TrimSpace(string(data))
	version, err := strconv.Atoi(trimmed)
	if err != nil {
		return false, err
	}
	if version != historySchemaVersion {
		return false, fmt.Errorf("history schema version mismatch: got %d, want %d", version, historySchemaVersion)
	}
	return true, nil
}

// schemaVersionPath keeps the marker next to the database file.
func schemaVersionPath(dbFilePath string) string {
	return filepath.Join(filepath.Dir(dbFilePath), "history_schema_version")
}

// StartExecution records an authorized tool call before it runs.
func (historyManager *HistoryManager) StartExecution(requestID, tool, arguments, directory, decision string) (*ExecutionEntry, error) {
	entry := ExecutionEntry{
		RequestID: requestID,
		Tool:      tool,
		Arguments: arguments,
		Decision:  decision,
		Directory: directory,
	}

	result := historyManager.db.Create(&entry)
	if result.Error != nil {
		return nil, result.Error
	}

	return &entry, nil
}

// FinishExecution stores how the call ended. exitCode is nil for tools that
// do not run a process.
func (historyManager *HistoryManager) FinishExecution(entry *ExecutionEntry, duration time.Duration, exitCode *int, execErr error) (*ExecutionEntry, error) {
	entry.Finished = true
	entry.DurationMs = duration.Milliseconds()
	if exitCode != nil {
		entry.ExitCode = sql.NullInt32{Int32: int32(*exitCode), Valid: true}
	}
	if execErr != nil {
		entry.Error = execErr.Error()
	}

	result := historyManager.db.Save(entry)
	if result.Error != nil {
		return nil, result.Error
	}

	return entry, nil
}

// RecordDenial stores a call the operator refused. It never ran.
func (historyManager *HistoryManager) RecordDenial(requestID, tool, arguments, directory string) (*ExecutionEntry, error) {
	entry := ExecutionEntry{
		RequestID: requestID,
		Tool:      tool,
		Arguments: arguments,
		Decision:  DecisionDenied,
		Directory: directory,
		Finished:  true,
	}

	result := historyManager.db.Create(&entry)
	if result.Error != nil {
		return nil, result.Error
	}

	return &entry, nil
}

// GetRecentEntries returns up to limit entries, oldest first. An empty tool
// matches every tool.
func (historyManager *HistoryManager) GetRecentEntries(tool string, limit int) ([]ExecutionEntry, error) {
	var entries []ExecutionEntry
	var db = historyManager.db
	if tool != "" {
		db = db.Where("tool = ?", tool)
	}
	result := db.Order("created_at desc").Order("id desc").Limit(limit).Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}

	slices.Reverse(entries)
	return entries, nil
}

func (historyManager *HistoryManager) DeleteEntry(id uint) error {
	result := historyManager.db.Delete(&ExecutionEntry{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no history entry found with id %d", id)
	}

	return nil
}

func (historyManager *HistoryManager) ResetHistory() error {
	result := historyManager.db.Exec("DELETE FROM execution_entries")
	if result.Error != nil {
		return result.Error
	}

	return nil
}

// SearchHistory searches for entries whose arguments contain the given substring.
// Returns entries in reverse chronological order (most recent first).
func (historyManager *HistoryManager) SearchHistory(query string, limit int) ([]ExecutionEntry, error) {
	var entries []ExecutionEntry
	result := historyManager.db.Where("arguments LIKE ?", "%"+query+"%").
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}

	return entries, nil
}

// CountByDecision returns how many entries carry each decision value.
func (historyManager *HistoryManager) CountByDecision() (map[string]int64, error) {
	var rows []struct {
		Decision string
		Count    int64
	}
	result := historyManager.db.Model(&ExecutionEntry{}).
		Select("decision, count(*) as count").
		Group("decision").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Decision] = row.Count
	}
	return counts, nil
}

func (historyManager *HistoryManager) Close() error {
	sqlDB, err := historyManager.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
