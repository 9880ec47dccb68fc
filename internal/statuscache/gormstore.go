package statuscache

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/caseforge/docstream/internal/config"
)

// SnapshotRecord is the persisted form of a Snapshot, shared by the api
// and worker binaries through the database.
type SnapshotRecord struct {
	Namespace  string `gorm:"primaryKey;type:varchar(64)"`
	JobID      string `gorm:"primaryKey;type:varchar(36)"`
	Status     string `gorm:"type:varchar(50);not null"`
	Phase      string `gorm:"type:varchar(100)"`
	Progress   int    `gorm:"not null;default:0"`
	Message    string `gorm:"type:text"`
	Error      string `gorm:"type:text"`
	Result     datatypes.JSON `gorm:"type:jsonb"`
	StartedAt  time.Time
	UpdatedAt  time.Time
	EndedAt    *time.Time
	DurationMS int64
	ExpiresAt  time.Time `gorm:"index"`
}

func (SnapshotRecord) TableName() string { return "status_snapshots" }

// GORMStore is the database-backed Store. It lets separate processes
// (api, workers) observe the same snapshots.
type GORMStore struct {
	db  *gorm.DB
	ttl time.Duration

	// to help with testing
	now func() time.Time
}

var _ Store = (*GORMStore)(nil)

func NewGORMStore(db *gorm.DB, ttl time.Duration) *GORMStore {
	return &GORMStore{db: db, ttl: ttl, now: time.Now}
}

func (s *GORMStore) Update(ctx context.Context, namespace, jobID string, u Update) (*Snapshot, error) {
	var out *Snapshot

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		var rec SnapshotRecord
		q := tx.Where("namespace = ? AND job_id = ?", namespace, jobID)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		err := q.First(&rec).Error
		fresh := errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && now.After(rec.ExpiresAt))
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if fresh {
			rec = SnapshotRecord{
				Namespace: namespace,
				JobID:     jobID,
				Status:    config.SnapshotQueued,
				StartedAt: now,
			}
		}

		if u.Status != "" {
			rec.Status = u.Status
		}
		if u.Phase != "" {
			rec.Phase = u.Phase
		}
		if u.Progress != nil && *u.Progress > rec.Progress {
			rec.Progress = *u.Progress
		}
		if u.Message != "" {
			rec.Message = u.Message
		}
		if u.Error != "" {
			rec.Error = u.Error
		}
		if u.Result != nil {
			rec.Result = datatypes.JSON(u.Result)
		}

		rec.UpdatedAt = now
		rec.ExpiresAt = now.Add(s.ttl)

		terminal := rec.Status == config.SnapshotSuccess || rec.Status == config.SnapshotFailed
		if terminal && rec.EndedAt == nil {
			ended := now
			rec.EndedAt = &ended
			rec.DurationMS = ended.Sub(rec.StartedAt).Milliseconds()
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "job_id"}},
			UpdateAll: true,
		}).Create(&rec).Error; err != nil {
			return err
		}

		out = recordToSnapshot(&rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GORMStore) Get(ctx context.Context, namespace, jobID string) (*Snapshot, error) {
	var rec SnapshotRecord
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND job_id = ?", namespace, jobID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if s.now().After(rec.ExpiresAt) {
		return nil, nil
	}
	return recordToSnapshot(&rec), nil
}

func (s *GORMStore) Delete(ctx context.Context, namespace, jobID string) error {
	return s.db.WithContext(ctx).
		Where("namespace = ? AND job_id = ?", namespace, jobID).
		Delete(&SnapshotRecord{}).Error
}

func (s *GORMStore) Sweep(ctx context.Context) (int, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Delete(&SnapshotRecord{})
	return int(res.RowsAffected), res.Error
}

func recordToSnapshot(rec *SnapshotRecord) *Snapshot {
	return &Snapshot{
		Namespace:  rec.Namespace,
		JobID:      rec.JobID,
		Status:     rec.Status,
		Phase:      rec.Phase,
		Progress:   rec.Progress,
		Message:    rec.Message,
		Error:      rec.Error,
		Result:     []byte(rec.Result),
		StartedAt:  rec.StartedAt,
		UpdatedAt:  rec.UpdatedAt,
		EndedAt:    rec.EndedAt,
		DurationMS: rec.DurationMS,
		ExpiresAt:  rec.ExpiresAt,
	}
}
