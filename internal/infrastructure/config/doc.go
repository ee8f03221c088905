// Package config loads and validates PowerMirror configuration.
//
// Configuration is read from a YAML file, overridden by POWERMIRROR_*
// environment variables, and validated before use. Defaults are chosen so
// that a bare config file pointing at the backend is enough to run.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	log := logging.New(cfg.Logging, version)
package config
