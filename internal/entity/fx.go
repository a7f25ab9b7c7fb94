package entity

import "go.uber.org/fx"

var Module = fx.Module("entity.store",
	fx.Provide(NewStore),
)
