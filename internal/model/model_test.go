package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mnehpets/onerpc/auth"
	"github.com/mnehpets/onerpc/jsonrpc"
)

func newTestManager(t *testing.T) *ModelManager {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open in-memory sqlite")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	mm := NewModelManager(db)
	require.NoError(t, mm.Migrate(context.Background()), "migrate schema")
	return mm
}

func user(t *testing.T, id int64) auth.Ctx {
	t.Helper()
	c, err := auth.NewCtx(id)
	require.NoError(t, err)
	return c
}

func ptr[T any](v T) *T { return &v }

func TestProjectBmc_CRUD(t *testing.T) {
	ctx := context.Background()
	mm := newTestManager(t)
	alice := user(t, 1)

	id, err := ProjectBmc{}.Create(ctx, alice, mm, ProjectForCreate{Name: "  alpha "})
	require.NoError(t, err)

	p, err := ProjectBmc{}.Get(ctx, alice, mm, id)
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.Name)
	assert.Equal(t, int64(1), p.OwnerID)
	assert.False(t, p.CreatedAt.IsZero())

	require.NoError(t, ProjectBmc{}.Update(ctx, alice, mm, id, ProjectForUpdate{Name: ptr("beta")}))
	p, err = ProjectBmc{}.Get(ctx, alice, mm, id)
	require.NoError(t, err)
	assert.Equal(t, "beta", p.Name)

	require.NoError(t, ProjectBmc{}.Update(ctx, alice, mm, id, ProjectForUpdate{}))

	require.NoError(t, ProjectBmc{}.Delete(ctx, alice, mm, id))
	_, err = ProjectBmc{}.Get(ctx, alice, mm, id)
	var nf *EntityNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "project", nf.Entity)
	assert.Equal(t, id, nf.ID)
	assert.Equal(t, jsonrpc.CodeNotFound, jsonrpc.ErrorFrom(err).Code)
}

func TestProjectBmc_Validation(t *testing.T) {
	ctx := context.Background()
	mm := newTestManager(t)
	alice := user(t, 1)

	_, err := ProjectBmc{}.Create(ctx, alice, mm, ProjectForCreate{Name: " "})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)
	assert.Equal(t, jsonrpc.CodeInvalidParams, jsonrpc.ErrorFrom(err).Code)

	id, err := ProjectBmc{}.Create(ctx, alice, mm, ProjectForCreate{Name: "ok"})
	require.NoError(t, err)
	err = ProjectBmc{}.Update(ctx, alice, mm, id, ProjectForUpdate{Name: ptr("")})
	assert.ErrorAs(t, err, &ve)
}

func TestProjectBmc_Ownership(t *testing.T) {
	ctx := context.Background()
	mm := newTestManager(t)
	alice, bob := user(t, 1), user(t, 2)

	id, err := ProjectBmc{}.Create(ctx, alice, mm, ProjectForCreate{Name: "secret"})
	require.NoError(t, err)

	var nf *EntityNotFoundError
	_, err = ProjectBmc{}.Get(ctx, bob, mm, id)
	assert.ErrorAs(t, err, &nf)
	assert.ErrorAs(t, ProjectBmc{}.Update(ctx, bob, mm, id, ProjectForUpdate{Name: ptr("mine")}), &nf)
	assert.ErrorAs(t, ProjectBmc{}.Delete(ctx, bob, mm, id), &nf)

	list, err := ProjectBmc{}.List(ctx, bob, mm, nil, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = ProjectBmc{}.Get(ctx, auth.RootCtx(), mm, id)
	assert.NoError(t, err)
}

func TestProjectBmc_List(t *testing.T) {
	ctx := context.Background()
	mm := newTestManager(t)
	alice := user(t, 1)

	for _, name := range []string{"charlie", "alpha", "bravo", "alphabet"} {
		_, err := ProjectBmc{}.Create(ctx, alice, mm, ProjectForCreate{Name: name})
		require.NoError(t, err)
	}

	all, err := ProjectBmc{}.List(ctx, alice, mm, nil, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "charlie", all[0].Name, "default order is by id")

	sorted, err := ProjectBmc{}.List(ctx, alice, mm, nil, ListOptions{OrderBys: "!name"})
	require.NoError(t, err)
	assert.Equal(t, "charlie", sorted[0].Name)
	assert.Equal(t, "alpha", sorted[3].Name)

	page, err := ProjectBmc{}.List(ctx, alice, mm, nil, ListOptions{Limit: 2, Offset: 1, OrderBys: "name"})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "alphabet", page[0].Name)
	assert.Equal(t, "bravo", page[1].Name)

	filtered, err := ProjectBmc{}.List(ctx, alice, mm, &ProjectFilter{NameContains: "alpha"}, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	_, err = ProjectBmc{}.List(ctx, alice, mm, nil, ListOptions{OrderBys: "owner_id; DROP TABLE projects"})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = ProjectBmc{}.List(ctx, alice, mm, nil, ListOptions{Offset: -1})
	assert.ErrorAs(t, err, &ve)
}

func TestListOptions_Limit(t *testing.T) {
	ctx := context.Background()
	mm := newTestManager(t)
	alice := user(t, 1)

	rows := make([]Project, MaxListLimit+5)
	for i := range rows {
		rows[i] = Project{OwnerID: 1, Name: "p"}
	}
	require.NoError(t, mm.db.CreateInBatches(&rows, 200).Error)

	list, err := ProjectBmc{}.List(ctx, alice, mm, nil, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, DefaultListLimit)

	list, err = ProjectBmc{}.List(ctx, alice, mm, nil, ListOptions{Limit: MaxListLimit * 2})
	require.NoError(t, err)
	assert.Len(t, list, MaxListLimit)
}

func TestTaskBmc(t *testing.T) {
	ctx := context.Background()
	mm := newTestManager(t)
	alice, bob := user(t, 1), user(t, 2)

	pid, err := ProjectBmc{}.Create(ctx, alice, mm, ProjectForCreate{Name: "p"})
	require.NoError(t, err)

	_, err = TaskBmc{}.Create(ctx, bob, mm, TaskForCreate{ProjectID: pid, Title: "sneaky"})
	var nf *EntityNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "project", nf.Entity)

	t1, err := TaskBmc{}.Create(ctx, alice, mm, TaskForCreate{ProjectID: pid, Title: "one"})
	require.NoError(t, err)
	t2, err := TaskBmc{}.Create(ctx, alice, mm, TaskForCreate{ProjectID: pid, Title: "two"})
	require.NoError(t, err)

	require.NoError(t, TaskBmc{}.Update(ctx, alice, mm, t1, TaskForUpdate{Done: ptr(true)}))
	task, err := TaskBmc{}.Get(ctx, alice, mm, t1)
	require.NoError(t, err)
	assert.True(t, task.Done)
	assert.Equal(t, "one", task.Title)
	assert.Equal(t, pid, task.ProjectID)

	done, err := TaskBmc{}.List(ctx, alice, mm, &TaskFilter{ProjectID: pid, Done: ptr(true)}, ListOptions{})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, t1, done[0].ID)

	open, err := TaskBmc{}.List(ctx, alice, mm, &TaskFilter{Done: ptr(false)}, ListOptions{})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, t2, open[0].ID)

	_, err = TaskBmc{}.Get(ctx, bob, mm, t1)
	assert.ErrorAs(t, err, &nf)

	require.NoError(t, TaskBmc{}.Delete(ctx, alice, mm, t2))
	assert.ErrorAs(t, TaskBmc{}.Delete(ctx, alice, mm, t2), &nf)

	require.NoError(t, ProjectBmc{}.Delete(ctx, alice, mm, pid))
	_, err = TaskBmc{}.Get(ctx, alice, mm, t1)
	assert.True(t, errors.As(err, &nf), "tasks are deleted with their project")
}

func TestOpen(t *testing.T) {
	mm, err := Open("file::memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mm.Close() })
	require.NoError(t, mm.Migrate(context.Background()))
	assert.NoError(t, mm.Ping(context.Background()))
}
