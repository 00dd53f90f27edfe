// internal/gateway/errors.go
package gateway

import "errors"

var (
	ErrDiscovery   = errors.New("fleet discovery failed")
	ErrLogin       = errors.New("login failed")
	ErrConnect     = errors.New("connect failed")
	ErrPreview     = errors.New("preview start failed")
	ErrRecordStart = errors.New("record start failed")
	ErrRecordStop  = errors.New("record stop failed")
)
