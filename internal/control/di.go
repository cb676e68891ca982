package control

import (
	"github.com/samber/do/v2"
	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/internal/config"
	"github.com/Resonate-Protocol/hound/internal/metrics"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		registry := do.MustInvoke[*hound.Registry](i)
		log := do.MustInvoke[*zap.Logger](i)

		sc := Config{
			Listen: cfg.Control.Listen,
			Port:   cfg.Control.Port,
			Name:   cfg.Name,
		}
		if cfg.Metrics.Enabled {
			sc.Metrics = do.MustInvoke[*metrics.Registry](i).Handler()
		}
		return New(sc, registry, log.Named("control")), nil
	})
}
