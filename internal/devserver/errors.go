package devserver

import "errors"

var (
	ErrInvalidProxyTarget = errors.New("invalid proxy target")
	ErrInvalidOptions     = errors.New("invalid dev server options")
)
