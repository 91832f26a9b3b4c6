package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// cache holds one parsed value per configuration type.
type cache struct {
	mu     sync.Mutex
	values map[reflect.Type]any
}

var (
	global = &cache{values: make(map[reflect.Type]any)}

	defaultEnvLoaded sync.Once
)

// LoadEnv loads one or more .env files into the process environment.
// Variables already set in the environment win over file values.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// Load parses environment variables into v according to its `env` tags.
//
// A .env file in the working directory is loaded once if present. Each
// configuration type is parsed only on the first call; later calls receive a
// copy of the cached value.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	defaultEnvLoaded.Do(func() {
		// A missing .env is normal outside local development.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	key := reflect.TypeFor[T]()
	if key.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %s", ErrInvalidConfigType, key)
	}

	global.mu.Lock()
	defer global.mu.Unlock()

	if cached, ok := global.values[key]; ok {
		*v = cached.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	global.values[key] = parsed
	*v = parsed
	return nil
}

// MustLoad works like Load but panics on failure.
// Use it for configuration the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: failed to load %s: %v", reflect.TypeFor[T](), err))
	}
}

// ResetCache drops every cached configuration so the next Load re-reads the environment.
func ResetCache() {
	global.mu.Lock()
	defer global.mu.Unlock()
	clear(global.values)
}
