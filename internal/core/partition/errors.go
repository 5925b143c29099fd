package partition

import "errors"

var (
	ErrUnknownPartition = errors.New("unknown partition")
	ErrInvalidEntity    = errors.New("entity id 0 is reserved")
	ErrEntityExists     = errors.New("entity already spawned in partition")
	ErrEntityNotFound   = errors.New("entity not found in partition")

	// Origin designator errors. ErrNoOrigin and ErrMultipleOrigins are the
	// configuration errors a frame reports when a populated partition cannot
	// be resolved.

	ErrNoOrigin         = errors.New("partition has no floating origin")
	ErrMultipleOrigins  = errors.New("partition already has a floating origin")
	ErrOriginNotGridded = errors.New("floating origin must be a grid-positioned root entity")
)
