package fleetconfig

import "errors"

var (
	ErrConfigInvalid = errors.New("invalid fleet config")
	ErrReadConfig    = errors.New("read fleet config")
)
