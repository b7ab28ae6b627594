package rpcs

import (
	"context"

	"github.com/mnehpets/onerpc/auth"
	"github.com/mnehpets/onerpc/internal/model"
	"github.com/mnehpets/onerpc/rpc"
)

// ProjectRouter serves create_project, get_project, list_projects,
// update_project and delete_project.
func ProjectRouter() *rpc.Router {
	return rpc.NewBuilder().
		Add("create_project", rpc.Func2(createProject)).
		Add("get_project", rpc.Func2(getProject)).
		Add("list_projects", rpc.Func2(listProjects)).
		Add("update_project", rpc.Func2(updateProject)).
		Add("delete_project", rpc.Func2(deleteProject)).
		Build()
}

func createProject(ctx context.Context, actor auth.Ctx, mm *model.ModelManager, params ParamsForCreate[model.ProjectForCreate]) (*model.Project, error) {
	id, err := model.ProjectBmc{}.Create(ctx, actor, mm, params.Data)
	if err != nil {
		return nil, err
	}
	return model.ProjectBmc{}.Get(ctx, actor, mm, id)
}

func getProject(ctx context.Context, actor auth.Ctx, mm *model.ModelManager, params ParamsIded) (*model.Project, error) {
	return model.ProjectBmc{}.Get(ctx, actor, mm, params.ID)
}

func listProjects(ctx context.Context, actor auth.Ctx, mm *model.ModelManager, params ParamsList[model.ProjectFilter]) ([]model.Project, error) {
	return model.ProjectBmc{}.List(ctx, actor, mm, params.Filter, params.options())
}

func updateProject(ctx context.Context, actor auth.Ctx, mm *model.ModelManager, params ParamsForUpdate[model.ProjectForUpdate]) (*model.Project, error) {
	if err := (model.ProjectBmc{}).Update(ctx, actor, mm, params.ID, params.Data); err != nil {
		return nil, err
	}
	return model.ProjectBmc{}.Get(ctx, actor, mm, params.ID)
}

// deleteProject returns the project as it was before deletion.
func deleteProject(ctx context.Context, actor auth.Ctx, mm *model.ModelManager, params ParamsIded) (*model.Project, error) {
	p, err := model.ProjectBmc{}.Get(ctx, actor, mm, params.ID)
	if err != nil {
		return nil, err
	}
	if err := (model.ProjectBmc{}).Delete(ctx, actor, mm, params.ID); err != nil {
		return nil, err
	}
	return p, nil
}
