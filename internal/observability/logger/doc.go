// Package logger expone un logger Zap único con scoping por contexto.
//
// Decisiones:
//
//   - Singleton: una sola instancia inicializada con Init() en main.
//   - Scoping: cada request lleva su propio logger con request_id, admin, etc.
//     (ToContext/From), sin crear un core nuevo.
//   - Entornos: "dev" escribe consola con colores, "prod" escribe JSON.
//
// Uso típico:
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
//	defer logger.Sync()
//
//	log := logger.From(ctx)
//	log.Info("otp verificado", logger.Serial(serial), logger.Counter(next))
package logger
