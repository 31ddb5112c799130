package probe

import (
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/factory"
	"Go2AQMSpectra/internal/model"
)

func init() {
	factory.RegisterWriter("nats", func(env *factory.Env, def config.WriterDef) (model.Writer, error) {
		return NewPublisher(def.NATS, env.SessionID)
	})
}
