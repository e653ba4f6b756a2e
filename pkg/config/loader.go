package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	cacheMu sync.Mutex
	cache   = make(map[reflect.Type]any)

	dotenvOnce sync.Once
)

// Load fills v from the environment, reusing the first successful result for type T.
//
// The first call of any loader in this package reads the .env file in the working
// directory, if there is one. Fields are then parsed from their env tags, with
// envDefault values for unset variables. Once a configuration type has loaded
// successfully, later calls for the same type return the cached value without
// looking at the environment again; a failed load is not cached.
//
// Nested structs are parsed too, so a program can group the settings of every
// component in one type:
//
//	type appConfig struct {
//		ShareUsage shareusage.Config
//		Logger     logger.Config
//		Redis      redis.Config
//	}
//
//	var cfg appConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Errors wrap ErrParsingConfig, e.g. when a required variable is missing or a value
// has the wrong type. A nil v yields ErrNilPointer.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	loadDefaultEnvFile()

	typ := reflect.TypeFor[T]()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := cache[typ]; ok {
		*v = cached.(T)
		return nil
	}

	var fresh T
	if err := parse(&fresh); err != nil {
		return err
	}
	cache[typ] = fresh
	*v = fresh
	return nil
}

// MustLoad is Load for configuration the program cannot start without.
// It panics when loading fails, so use it in main or package initialization,
// where a missing setting should stop startup.
//
// Example:
//
//	var redisCfg redis.Config
//	config.MustLoad(&redisCfg)
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// Parse fills v from the current environment without caching.
// Values already present in v are overwritten only where a variable or default applies,
// which makes it suitable for layering the environment over programmatic defaults:
//
//	cfg := shareusage.DefaultConfig()
//	if err := config.Parse(&cfg); err != nil {
//		return err
//	}
//
// Use Load instead when the same type is read from several places.
func Parse[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	loadDefaultEnvFile()
	return parse(v)
}

// LoadEnv applies the given .env files. Unlike the implicit default file, missing files
// are an error here and values override the current environment.
// The cache is reset afterwards, so the next Load sees the new values.
//
// Example:
//
//	if err := config.LoadEnv(".env", ".env.local"); err != nil {
//		log.Fatal(err)
//	}
//
// Errors wrap ErrLoadingEnvFile.
func LoadEnv(paths ...string) error {
	if err := godotenv.Overload(paths...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	ResetCache()
	return nil
}

// ResetCache forgets every cached configuration, so the next Load parses the
// environment again. Intended for tests that change variables with t.Setenv.
func ResetCache() {
	cacheMu.Lock()
	clear(cache)
	cacheMu.Unlock()
}

func parse[T any](v *T) error {
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

func loadDefaultEnvFile() {
	dotenvOnce.Do(func() {
		// A missing .env is the normal case outside local development.
		_ = godotenv.Load()
	})
}
