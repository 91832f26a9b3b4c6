// Package config loads typed configuration from environment variables.
//
// It combines github.com/joho/godotenv for .env files with
// github.com/caarlos0/env/v11 for struct parsing. Each configuration type is
// parsed once and cached for the lifetime of the process.
//
//	type AppConfig struct {
//	    Env         string `env:"APP_ENV" envDefault:"development"`
//	    StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
//	}
//
//	var app AppConfig
//	config.MustLoad(&app)
//
//	var db pg.Config
//	if err := config.Load(&db); err != nil {
//	    return err
//	}
//
// Call LoadEnv before the first Load to read additional .env files. Tests that
// change the environment between loads of the same type call ResetCache.
//
// Errors match ErrParsingConfig, ErrInvalidConfigType, ErrNilPointer or
// ErrLoadingEnvFile under errors.Is.
package config
