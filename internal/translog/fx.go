package translog

import (
	"github.com/smallbiznis/bloodbridge/internal/translog/repository"
	"github.com/smallbiznis/bloodbridge/internal/translog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("translog",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
