package device

import (
	"time"

	"github.com/samber/do/v2"
	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/internal/config"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		registry := do.MustInvoke[*hound.Registry](i)
		log := do.MustInvoke[*zap.Logger](i)

		format, err := cfg.DefaultFormat.Audio()
		if err != nil {
			return nil, err
		}
		return NewManager(registry, Options{
			Period:        time.Duration(cfg.PeriodMS) * time.Millisecond,
			DefaultFormat: format,
			Logger:        log.Named("device"),
		}), nil
	})
}
