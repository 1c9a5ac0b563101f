package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lecturelens-backend/internal/domain"
	"github.com/yungbote/lecturelens-backend/internal/platform/logger"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskRepo is the concurrent-safe registry of conversion tasks. Only the
// pipeline orchestrator mutates task rows after creation.
type TaskRepo interface {
	Create(ctx context.Context, tx *gorm.DB, task *domain.Task) (*domain.Task, error)
	GetByID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*domain.Task, error)
	List(ctx context.Context, tx *gorm.DB) ([]*domain.Task, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, updates map[string]any) error
	// AdvanceStatus moves the task to next only if the forward-only state
	// machine allows it from the task's current status.
	AdvanceStatus(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, next domain.TaskStatus) error
	Delete(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) error
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{db: db, log: baseLog.With("repo", "TaskRepo")}
}

func (tr *taskRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return tr.db
}

func (tr *taskRepo) Create(ctx context.Context, tx *gorm.DB, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, fmt.Errorf("task required")
	}
	if err := tr.conn(tx).WithContext(ctx).Create(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

func (tr *taskRepo) GetByID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*domain.Task, error) {
	var task domain.Task
	err := tr.conn(tx).WithContext(ctx).Where("id = ?", taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (tr *taskRepo) List(ctx context.Context, tx *gorm.DB) ([]*domain.Task, error) {
	var tasks []*domain.Task
	if err := tr.conn(tx).WithContext(ctx).Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (tr *taskRepo) UpdateFields(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now()
	res := tr.conn(tx).WithContext(ctx).
		Model(&domain.Task{}).
		Where("id = ?", taskID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (tr *taskRepo) AdvanceStatus(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, next domain.TaskStatus) error {
	task, err := tr.GetByID(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if !task.Status.CanTransition(next) {
		return fmt.Errorf("illegal status transition %s -> %s", task.Status, next)
	}
	updates := map[string]any{"status": next}
	if next != domain.StatusFailed {
		// Progress resets at each stage transition.
		updates["stage_progress"] = 0
	}
	return tr.UpdateFields(ctx, tx, taskID, updates)
}

func (tr *taskRepo) Delete(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) error {
	res := tr.conn(tx).WithContext(ctx).Where("id = ?", taskID).Delete(&domain.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}
