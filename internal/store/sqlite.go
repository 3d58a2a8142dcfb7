// internal/store/sqlite.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xkilldash9x/chatprobe/internal/reporting"
)

type runModel struct {
	ID         string        `gorm:"primaryKey;size:64"`
	Title      string        `gorm:"not null;size:400"`
	StartedAt  time.Time     `gorm:"index;not null"`
	FinishedAt time.Time     `gorm:"not null"`
	Results    []resultModel `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

func (runModel) TableName() string { return "runs" }

type resultModel struct {
	RunID       string `gorm:"primaryKey;size:64"`
	Position    int    `gorm:"primaryKey;autoIncrement:false"`
	Name        string `gorm:"not null"`
	SentMessage *string
	Response    string `gorm:"not null"`
	Duration    float64
	Error       *string
	Screenshot  *string
	Status      string `gorm:"not null;size:16"`
}

func (resultModel) TableName() string { return "test_results" }

type runCount struct {
	RunID  string
	Total  int
	Failed int
}

// SQLiteStore keeps run history in a SQLite file through gorm.
type SQLiteStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenSQLite opens (or creates) the database at dsn and migrates it. A
// leading ~ in a file path is expanded.
func OpenSQLite(dsn string, logger *zap.Logger) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite database path is required")
	}
	expanded, err := homedir.Expand(dsn)
	if err != nil {
		return nil, fmt.Errorf("expanding database path %q: %w", dsn, err)
	}
	db, err := gorm.Open(sqlite.Open(expanded), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return NewSQLite(db, logger)
}

// NewSQLite wraps an open gorm handle and migrates the history tables.
func NewSQLite(db *gorm.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&runModel{}, &resultModel{}); err != nil {
		return nil, fmt.Errorf("migrating run history: %w", err)
	}
	return &SQLiteStore{db: db, log: logger.Named("store")}, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, sum reporting.Summary) error {
	run := runModel{
		ID:         sum.RunID,
		Title:      sum.Title,
		StartedAt:  sum.StartedAt.UTC(),
		FinishedAt: sum.FinishedAt.UTC(),
	}
	results := make([]resultModel, len(sum.Rows))
	for i, r := range sum.Rows {
		resp, err := encodeResponse(r.ResponseText)
		if err != nil {
			return fmt.Errorf("result %s: %w", r.Name, err)
		}
		results[i] = resultModel{
			RunID:       sum.RunID,
			Position:    i,
			Name:        r.Name,
			SentMessage: r.SentMessage,
			Response:    resp,
			Duration:    r.Duration,
			Error:       r.Error,
			Screenshot:  r.Screenshot,
			Status:      r.Status,
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&run).Error; err != nil {
			return fmt.Errorf("failed to save run %s: %w", sum.RunID, err)
		}
		if err := tx.Where("run_id = ?", sum.RunID).Delete(&resultModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear results of run %s: %w", sum.RunID, err)
		}
		if len(results) == 0 {
			return nil
		}
		if err := tx.Create(&results).Error; err != nil {
			return fmt.Errorf("failed to insert results: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Debug("Run saved", zap.String("run_id", sum.RunID), zap.Int("results", len(results)))
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	db := s.db.WithContext(ctx)

	var runs []runModel
	q := db.Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	var counts []runCount
	err := db.Model(&resultModel{}).
		Select("run_id, COUNT(*) AS total, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed", reporting.StatusFailed).
		Where("run_id IN ?", ids).
		Group("run_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}
	byRun := make(map[string]runCount, len(counts))
	for _, c := range counts {
		byRun[c.RunID] = c
	}

	infos := make([]RunInfo, len(runs))
	for i, r := range runs {
		c := byRun[r.ID]
		infos[i] = RunInfo{
			RunID:      r.ID,
			Title:      r.Title,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
			Total:      c.Total,
			Failed:     c.Failed,
		}
	}
	return infos, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (reporting.Summary, error) {
	sum := reporting.Summary{RunID: runID}
	var run runModel
	err := s.db.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&run, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sum, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return sum, fmt.Errorf("failed to read run %s: %w", runID, err)
	}

	sum.Title, sum.StartedAt, sum.FinishedAt = run.Title, run.StartedAt, run.FinishedAt
	for _, r := range run.Results {
		resp, err := decodeResponse(r.Response)
		if err != nil {
			return sum, fmt.Errorf("result %s: %w", r.Name, err)
		}
		sum.Rows = append(sum.Rows, reporting.SummaryRow{
			Name:         r.Name,
			SentMessage:  r.SentMessage,
			ResponseText: resp,
			Duration:     r.Duration,
			Error:        r.Error,
			Screenshot:   r.Screenshot,
			Status:       r.Status,
		})
	}
	return sum, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
