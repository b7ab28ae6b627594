package model

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/mnehpets/onerpc/auth"
)

const (
	// DefaultListLimit applies when ListOptions.Limit is unset.
	DefaultListLimit = 300
	// MaxListLimit caps ListOptions.Limit.
	MaxListLimit = 1000
)

// ListOptions pages and orders a list query.
//
// OrderBys is a comma separated list of columns; a leading "!" sorts that
// column descending.
type ListOptions struct {
	Limit    int64  `json:"limit,omitempty"`
	Offset   int64  `json:"offset,omitempty"`
	OrderBys string `json:"order_bys,omitempty"`
}

func (o ListOptions) apply(db *gorm.DB, columns map[string]bool) (*gorm.DB, error) {
	limit := o.Limit
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	if o.Offset < 0 {
		return nil, &ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	db = db.Limit(int(limit)).Offset(int(o.Offset))

	if strings.TrimSpace(o.OrderBys) == "" {
		return db.Order("id"), nil
	}
	for _, part := range strings.Split(o.OrderBys, ",") {
		col := strings.TrimSpace(part)
		desc := strings.HasPrefix(col, "!")
		col = strings.TrimPrefix(col, "!")
		if !columns[col] {
			return nil, &ValidationError{Field: "order_bys", Reason: "unknown column " + col}
		}
		if desc {
			col += " DESC"
		}
		db = db.Order(col)
	}
	return db, nil
}

// scoped restricts a query to rows owned by actor. Root sees every row.
func scoped(db *gorm.DB, actor auth.Ctx) *gorm.DB {
	if actor.IsRoot() {
		return db
	}
	return db.Where("owner_id = ?", actor.UserID())
}

func get[E any](ctx context.Context, mm *ModelManager, actor auth.Ctx, entity string, id int64) (*E, error) {
	var e E
	err := scoped(mm.conn(ctx), actor).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &EntityNotFoundError{Entity: entity, ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func list[E any](ctx context.Context, mm *ModelManager, actor auth.Ctx, filter func(*gorm.DB) *gorm.DB, opts ListOptions, columns map[string]bool) ([]E, error) {
	db := scoped(mm.conn(ctx).Model(new(E)), actor)
	if filter != nil {
		db = filter(db)
	}
	db, err := opts.apply(db, columns)
	if err != nil {
		return nil, err
	}
	items := []E{}
	if err := db.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func update[E any](ctx context.Context, mm *ModelManager, actor auth.Ctx, entity string, id int64, changes map[string]any) error {
	if len(changes) == 0 {
		_, err := get[E](ctx, mm, actor, entity, id)
		return err
	}
	res := scoped(mm.conn(ctx).Model(new(E)), actor).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &EntityNotFoundError{Entity: entity, ID: id}
	}
	return nil
}

func remove[E any](db *gorm.DB, actor auth.Ctx, entity string, id int64) error {
	res := scoped(db, actor).Where("id = ?", id).Delete(new(E))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &EntityNotFoundError{Entity: entity, ID: id}
	}
	return nil
}
