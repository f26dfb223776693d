package course

import (
	"github.com/neuron-e/api-boukii-sub004/internal/course/repository"
	"github.com/neuron-e/api-boukii-sub004/internal/course/service"
	"go.uber.org/fx"
)

var Module = fx.Module("course.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
