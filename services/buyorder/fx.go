package buyorder

import (
	"smallbiznis-tokenomics/pkg/featureflags"
	"smallbiznis-tokenomics/pkg/task"

	"go.uber.org/fx"
)

var Module = fx.Module("buyorder.service",
	fx.Provide(NewService),
	fx.Provide(fx.Annotate(Models, fx.ResultTags(`group:"models,flatten"`))),
)

var TaskModule = fx.Module("task.buyorder",
	fx.Provide(
		provideFlagGate,
		NewTask,
		task.AsHandler(newExecuteHandler),
		task.AsPeriodic(newExecutePeriodic),
	),
)

func provideFlagGate(ff featureflags.FeatureFlag) FlagGate {
	return ff
}
