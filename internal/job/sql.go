package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/maauso/vidcompress/internal/media"
)

// Compile-time check that SQLRepository implements Repository.
var _ Repository = (*SQLRepository)(nil)

// jobRecord is the persisted form of a Job.
type jobRecord struct {
	ID          string      `gorm:"primaryKey"`
	Status      string      `gorm:"index"`
	Progress    int
	Error       string
	SourcePath  string
	OutputPath  string
	Quality     string
	Output      *media.Info `gorm:"serializer:json"`
	PushToS3    bool
	VideoURL    string
	CreatedAt   time.Time `gorm:"index;autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
	StartedAt   time.Time
	CompletedAt time.Time
}

func (jobRecord) TableName() string {
	return "compression_jobs"
}

func toRecord(j *Job) jobRecord {
	c := j.Clone()
	return jobRecord{
		ID:          c.ID,
		Status:      string(c.Status),
		Progress:    c.Progress,
		Error:       c.Error,
		SourcePath:  c.SourcePath,
		OutputPath:  c.OutputPath,
		Quality:     c.Quality,
		Output:      c.Output,
		PushToS3:    c.PushToS3,
		VideoURL:    c.VideoURL,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
	}
}

func (r jobRecord) toJob() *Job {
	return &Job{
		ID:          r.ID,
		Status:      Status(r.Status),
		Progress:    r.Progress,
		Error:       r.Error,
		SourcePath:  r.SourcePath,
		OutputPath:  r.OutputPath,
		Quality:     r.Quality,
		Output:      r.Output,
		PushToS3:    r.PushToS3,
		VideoURL:    r.VideoURL,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// SQLRepository keeps job history in a SQLite database through gorm.
type SQLRepository struct {
	db *gorm.DB
}

// NewSQLRepository opens (or creates) the SQLite database at path and
// migrates the schema.
func NewSQLRepository(path string) (*SQLRepository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}

	if err := db.AutoMigrate(&jobRecord{}); err != nil {
		return nil, fmt.Errorf("migrate job database: %w", err)
	}

	return &SQLRepository{db: db}, nil
}

// Save inserts or updates the job.
func (r *SQLRepository) Save(ctx context.Context, job *Job) error {
	rec := toRecord(job)
	if err := r.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("save job %s: %w", rec.ID, err)
	}
	return nil
}

// FindByID retrieves a job by ID.
func (r *SQLRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	var rec jobRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}
	return rec.toJob(), nil
}

// List returns jobs newest first.
func (r *SQLRepository) List(ctx context.Context, limit int) ([]*Job, error) {
	var recs []jobRecord
	q := r.db.WithContext(ctx).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(recs))
	for _, rec := range recs {
		jobs = append(jobs, rec.toJob())
	}
	return jobs, nil
}

// Delete removes a job.
func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&jobRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete job %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Close releases the underlying database handle.
func (r *SQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
