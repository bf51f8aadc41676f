package capacity

import "errors"

var (
	ErrObserveUnits  = errors.New("observe ready units")
	ErrPublishUnits  = errors.New("publish desired units")
	ErrClassDegraded = errors.New("node-class degraded")
)
