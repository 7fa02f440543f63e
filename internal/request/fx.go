package request

import (
	"github.com/smallbiznis/bloodbridge/internal/request/service"
	"go.uber.org/fx"
)

var Module = fx.Module("request",
	fx.Provide(service.New),
)
