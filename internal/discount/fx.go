package discount

import (
	"github.com/neuron-e/api-boukii-sub004/internal/discount/repository"
	"github.com/neuron-e/api-boukii-sub004/internal/discount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("discount.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
