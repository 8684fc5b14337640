package core

import (
	"errors"
)

var (
	ErrResourceCreation = errors.New("gpu resource creation failed")
	ErrInvalidHandle    = errors.New("invalid resource handle")
	ErrOutOfMemory      = errors.New("out of device memory")
	ErrDeviceLost       = errors.New("device lost")
	ErrQueueFull        = errors.New("queue is full")
	ErrQueueEmpty       = errors.New("queue is empty")
	ErrUnknown          = errors.New("unknown")
)
