package model

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mnehpets/onerpc/auth"
)

// Task belongs to a project. OwnerID is copied from the project on creation.
type Task struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	OwnerID   int64     `gorm:"index;not null" json:"owner_id"`
	ProjectID int64     `gorm:"index;not null" json:"project_id"`
	Title     string    `gorm:"size:256;not null" json:"title"`
	Done      bool      `gorm:"not null;default:false" json:"done"`
	CreatedAt time.Time `json:"ctime"`
	UpdatedAt time.Time `json:"mtime"`
}

type TaskForCreate struct {
	ProjectID int64  `json:"project_id"`
	Title     string `json:"title"`
}

type TaskForUpdate struct {
	Title *string `json:"title,omitempty"`
	Done  *bool   `json:"done,omitempty"`
}

type TaskFilter struct {
	ProjectID     int64  `json:"project_id,omitempty"`
	Done          *bool  `json:"done,omitempty"`
	TitleContains string `json:"title_contains,omitempty"`
}

var taskColumns = map[string]bool{"id": true, "project_id": true, "title": true, "done": true, "created_at": true, "updated_at": true}

// TaskBmc is the backend model controller for tasks.
type TaskBmc struct{}

// Create stores a task in a project visible to actor.
func (TaskBmc) Create(ctx context.Context, actor auth.Ctx, mm *ModelManager, data TaskForCreate) (int64, error) {
	title, err := validName("title", data.Title)
	if err != nil {
		return 0, err
	}
	p, err := ProjectBmc{}.Get(ctx, actor, mm, data.ProjectID)
	if err != nil {
		return 0, err
	}
	t := Task{OwnerID: p.OwnerID, ProjectID: p.ID, Title: title}
	if err := mm.conn(ctx).Create(&t).Error; err != nil {
		return 0, err
	}
	return t.ID, nil
}

func (TaskBmc) Get(ctx context.Context, actor auth.Ctx, mm *ModelManager, id int64) (*Task, error) {
	return get[Task](ctx, mm, actor, "task", id)
}

func (TaskBmc) List(ctx context.Context, actor auth.Ctx, mm *ModelManager, filter *TaskFilter, opts ListOptions) ([]Task, error) {
	return list[Task](ctx, mm, actor, func(db *gorm.DB) *gorm.DB {
		if filter == nil {
			return db
		}
		if filter.ProjectID != 0 {
			db = db.Where("project_id = ?", filter.ProjectID)
		}
		if filter.Done != nil {
			db = db.Where("done = ?", *filter.Done)
		}
		if filter.TitleContains != "" {
			db = db.Where("title LIKE ?", "%"+filter.TitleContains+"%")
		}
		return db
	}, opts, taskColumns)
}

func (TaskBmc) Update(ctx context.Context, actor auth.Ctx, mm *ModelManager, id int64, data TaskForUpdate) error {
	changes := map[string]any{}
	if data.Title != nil {
		title, err := validName("title", *data.Title)
		if err != nil {
			return err
		}
		changes["title"] = title
	}
	if data.Done != nil {
		changes["done"] = *data.Done
	}
	return update[Task](ctx, mm, actor, "task", id, changes)
}

func (TaskBmc) Delete(ctx context.Context, actor auth.Ctx, mm *ModelManager, id int64) error {
	return remove[Task](mm.conn(ctx), actor, "task", id)
}
