package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/agentquorum/internal/database"
	"github.com/BaSui01/agentquorum/recovery"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// entryRow is the SQL form of a TraceEntry. Input, output and metadata are stored as JSON text.
type entryRow struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Seq          int       `gorm:"not null"`
	SessionID    string    `gorm:"size:64;index:idx_trace_session"`
	WorkerID     string    `gorm:"size:64"`
	Timestamp    time.Time `gorm:"index"`
	Operation    string    `gorm:"size:64;index"`
	AgentName    string    `gorm:"size:128"`
	Input        string    `gorm:"type:text"`
	Output       string    `gorm:"type:text"`
	DurationNS   int64
	ErrorPattern string `gorm:"size:64;index"`
	Metadata     string `gorm:"type:text"`
}

func (entryRow) TableName() string { return "trace_entries" }

// GormStore persists trace entries to postgres, mysql or sqlite.
type GormStore struct {
	pool       *database.PoolManager
	batchSize  int
	maxRetries int
	logger     *zap.Logger
}

// NewGormStore 创建 SQL 追踪存储并自动迁移表结构。
func NewGormStore(ctx context.Context, pool *database.PoolManager, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().WithContext(ctx).AutoMigrate(&entryRow{}); err != nil {
		return nil, fmt.Errorf("migrate trace_entries: %w", err)
	}
	return &GormStore{
		pool:       pool,
		batchSize:  100,
		maxRetries: 3,
		logger:     logger.With(zap.String("component", "trace_gorm_store")),
	}, nil
}

// Write inserts entries in one transaction. Entries already stored are skipped,
// so flushing the same snapshot twice is harmless.
func (s *GormStore) Write(ctx context.Context, entries []TraceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]entryRow, 0, len(entries))
	for i, e := range entries {
		row, err := toRow(i, e)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return s.pool.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}
		var existing []string
		if err := tx.Model(&entryRow{}).Where("id IN ?", ids).Pluck("id", &existing).Error; err != nil {
			return err
		}
		skip := make(map[string]struct{}, len(existing))
		for _, id := range existing {
			skip[id] = struct{}{}
		}
		fresh := rows[:0:0]
		for _, r := range rows {
			if _, ok := skip[r.ID]; !ok {
				fresh = append(fresh, r)
			}
		}
		if len(fresh) == 0 {
			return nil
		}
		return tx.CreateInBatches(fresh, s.batchSize).Error
	})
}

// Load returns the stored entries of a session in log order.
func (s *GormStore) Load(ctx context.Context, sessionID string) ([]TraceEntry, error) {
	var rows []entryRow
	err := s.pool.DB().WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load trace entries: %w", err)
	}
	out := make([]TraceEntry, 0, len(rows))
	for _, r := range rows {
		e, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func toRow(seq int, e TraceEntry) (entryRow, error) {
	input, err := jsonText(e.Input)
	if err != nil {
		return entryRow{}, fmt.Errorf("encode input of %s: %w", e.ID, err)
	}
	output, err := jsonText(e.Output)
	if err != nil {
		return entryRow{}, fmt.Errorf("encode output of %s: %w", e.ID, err)
	}
	meta, err := jsonText(e.Metadata)
	if err != nil {
		return entryRow{}, fmt.Errorf("encode metadata of %s: %w", e.ID, err)
	}
	return entryRow{
		ID:           e.ID,
		Seq:          seq,
		SessionID:    e.SessionID,
		WorkerID:     e.WorkerID,
		Timestamp:    e.Timestamp.UTC(),
		Operation:    e.Operation,
		AgentName:    e.AgentName,
		Input:        input,
		Output:       output,
		DurationNS:   int64(e.Duration),
		ErrorPattern: string(e.ErrorPattern),
		Metadata:     meta,
	}, nil
}

func fromRow(r entryRow) (TraceEntry, error) {
	e := TraceEntry{
		ID:           r.ID,
		Timestamp:    r.Timestamp,
		WorkerID:     r.WorkerID,
		SessionID:    r.SessionID,
		Operation:    r.Operation,
		AgentName:    r.AgentName,
		Duration:     time.Duration(r.DurationNS),
		ErrorPattern: recovery.ErrorPattern(r.ErrorPattern),
	}
	for _, f := range []struct {
		text string
		dst  any
	}{
		{r.Input, &e.Input},
		{r.Output, &e.Output},
		{r.Metadata, &e.Metadata},
	} {
		if f.text == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.text), f.dst); err != nil {
			return TraceEntry{}, fmt.Errorf("decode trace entry %s: %w", r.ID, err)
		}
	}
	return e, nil
}

func jsonText(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
