// Package config loads environment-driven configuration structs.
//
// Structs describe their variables with caarlos0/env tags. A .env file in the working
// directory is applied once, before the first load, without overriding variables that are
// already set. Load caches one value per struct type; Parse always reads the environment.
//
//	var cfg shareusage.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
package config
