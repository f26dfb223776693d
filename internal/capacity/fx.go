package capacity

import (
	"github.com/neuron-e/api-boukii-sub004/internal/capacity/repository"
	"github.com/neuron-e/api-boukii-sub004/internal/capacity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("capacity.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
