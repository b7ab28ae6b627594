package model

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mnehpets/onerpc/auth"
)

const maxNameLen = 256

// Project groups tasks and is owned by one user.
type Project struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	OwnerID   int64     `gorm:"index;not null" json:"owner_id"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	CreatedAt time.Time `json:"ctime"`
	UpdatedAt time.Time `json:"mtime"`
}

type ProjectForCreate struct {
	Name string `json:"name"`
}

type ProjectForUpdate struct {
	Name *string `json:"name,omitempty"`
}

type ProjectFilter struct {
	NameContains string `json:"name_contains,omitempty"`
}

var projectColumns = map[string]bool{"id": true, "name": true, "created_at": true, "updated_at": true}

// ProjectBmc is the backend model controller for projects.
type ProjectBmc struct{}

func validName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: field, Reason: "must not be empty"}
	}
	if len(name) > maxNameLen {
		return "", &ValidationError{Field: field, Reason: "too long"}
	}
	return name, nil
}

// Create stores a project owned by actor and returns its id.
func (ProjectBmc) Create(ctx context.Context, actor auth.Ctx, mm *ModelManager, data ProjectForCreate) (int64, error) {
	name, err := validName("name", data.Name)
	if err != nil {
		return 0, err
	}
	p := Project{OwnerID: actor.UserID(), Name: name}
	if err := mm.conn(ctx).Create(&p).Error; err != nil {
		return 0, err
	}
	return p.ID, nil
}

func (ProjectBmc) Get(ctx context.Context, actor auth.Ctx, mm *ModelManager, id int64) (*Project, error) {
	return get[Project](ctx, mm, actor, "project", id)
}

func (ProjectBmc) List(ctx context.Context, actor auth.Ctx, mm *ModelManager, filter *ProjectFilter, opts ListOptions) ([]Project, error) {
	return list[Project](ctx, mm, actor, func(db *gorm.DB) *gorm.DB {
		if filter != nil && filter.NameContains != "" {
			db = db.Where("name LIKE ?", "%"+filter.NameContains+"%")
		}
		return db
	}, opts, projectColumns)
}

func (ProjectBmc) Update(ctx context.Context, actor auth.Ctx, mm *ModelManager, id int64, data ProjectForUpdate) error {
	changes := map[string]any{}
	if data.Name != nil {
		name, err := validName("name", *data.Name)
		if err != nil {
			return err
		}
		changes["name"] = name
	}
	return update[Project](ctx, mm, actor, "project", id, changes)
}

// Delete removes a project and its tasks.
func (ProjectBmc) Delete(ctx context.Context, actor auth.Ctx, mm *ModelManager, id int64) error {
	return mm.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := remove[Project](tx, actor, "project", id); err != nil {
			return err
		}
		return tx.Where("project_id = ?", id).Delete(&Task{}).Error
	})
}
