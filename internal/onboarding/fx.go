package onboarding

import (
	"github.com/smallbiznis/bazaar/internal/onboarding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("onboarding.service",
	fx.Provide(service.NewStoreWriter),
	fx.Provide(service.NewService),
)
