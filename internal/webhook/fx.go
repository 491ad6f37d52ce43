package webhook

import (
	"github.com/creditrail/creditrail/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.dispatcher",
	fx.Provide(service.NewDispatcher),
)
