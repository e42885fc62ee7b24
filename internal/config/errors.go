package config

import "errors"

var (
	ErrConfigFileNotFound    = errors.New("config file not found")
	ErrConfigFileRead        = errors.New("cannot read config file")
	ErrConfigInvalid         = errors.New("invalid config file")
	ErrDataFileEmpty         = errors.New("data_file cannot be empty")
	ErrInvalidDuration       = errors.New("invalid duration")
	ErrInvalidValue          = errors.New("invalid value")
	ErrUnknownSessionBackend = errors.New("unknown session backend (must be memory or redis)")
	ErrUnknownLogLevel       = errors.New("unknown log level (must be debug, info, warn or error)")
)
