package rpcs

import (
	"context"

	"github.com/mnehpets/onerpc/auth"
	"github.com/mnehpets/onerpc/internal/model"
	"github.com/mnehpets/onerpc/rpc"
)

// taskRPC's methods are registered by AddMethods. The `_` field of each
// params type names the method.
type taskRPC struct{}

type createTaskParams struct {
	_ struct{} `jsonrpc:"create_task"`
	ParamsForCreate[model.TaskForCreate]
}

type getTaskParams struct {
	_ struct{} `jsonrpc:"get_task"`
	ParamsIded
}

type listTasksParams struct {
	_ struct{} `jsonrpc:"list_tasks"`
	ParamsList[model.TaskFilter]
}

type updateTaskParams struct {
	_ struct{} `jsonrpc:"update_task"`
	ParamsForUpdate[model.TaskForUpdate]
}

type deleteTaskParams struct {
	_ struct{} `jsonrpc:"delete_task"`
	ParamsIded
}

// TaskRouter serves create_task, get_task, list_tasks, update_task and
// delete_task.
func TaskRouter() *rpc.Router {
	return rpc.NewBuilder().AddMethods("", taskRPC{}).Build()
}

func (taskRPC) Create(ctx context.Context, actor auth.Ctx, mm *model.ModelManager, params createTaskParams) (*model.Task, error) {
	id, err := model.TaskBmc{}.Create(ctx, actor, mm, params.Data)
	if err != nil {
		return nil, err
	}
	return model.TaskBmc{}.Get(ctx, actor, mm, id)
}

func (taskRPC) Get(ctx context.Context, actor auth.Ctx, mm *model.ModelManager, params getTaskParams) (*model.Task, error) {
	return model.TaskBmc{}.Get(ctx, actor, mm, params.ID)
}

func (taskRPC) List(ctx context.Context, actor auth.Ctx, mm *model.ModelManager, params listTasksParams) ([]model.Task, error) {
	return model.TaskBmc{}.List(ctx, actor, mm, params.Filter, params.options())
}

func (taskRPC) Update(ctx context.Context, actor auth.Ctx, mm *model.ModelManager, params updateTaskParams) (*model.Task, error) {
	if err := (model.TaskBmc{}).Update(ctx, actor, mm, params.ID, params.Data); err != nil {
		return nil, err
	}
	return model.TaskBmc{}.Get(ctx, actor, mm, params.ID)
}

func (taskRPC) Delete(ctx context.Context, actor auth.Ctx, mm *model.ModelManager, params deleteTaskParams) (*model.Task, error) {
	t, err := model.TaskBmc{}.Get(ctx, actor, mm, params.ID)
	if err != nil {
		return nil, err
	}
	if err := (model.TaskBmc{}).Delete(ctx, actor, mm, params.ID); err != nil {
		return nil, err
	}
	return t, nil
}
