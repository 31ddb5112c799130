package writer

import (
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/factory"
	"Go2AQMSpectra/internal/model"
)

func init() {
	factory.RegisterWriter("text", func(env *factory.Env, _ config.WriterDef) (model.Writer, error) {
		return NewTextWriter(env.OutputDir, env.Delays)
	})
	factory.RegisterWriter("clickhouse", func(env *factory.Env, def config.WriterDef) (model.Writer, error) {
		return NewClickHouseWriter(def.ClickHouse, env.SessionID)
	})
}
