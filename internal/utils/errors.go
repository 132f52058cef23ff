package utils

import "errors"

var ErrPoolStopped = errors.New("worker pool stopped")
