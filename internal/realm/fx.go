package realm

import (
	"github.com/smallbiznis/bazaar/internal/realm/repository"
	"github.com/smallbiznis/bazaar/internal/realm/service"
	"go.uber.org/fx"
)

var Module = fx.Module("realm.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
