package arbiter

import "errors"

var (
	ErrUnknownPool = errors.New("unknown pool")
	ErrScalePool   = errors.New("scale pool")
)
