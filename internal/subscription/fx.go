package subscription

import (
	"github.com/creditrail/creditrail/internal/subscription/repository"
	"github.com/creditrail/creditrail/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
