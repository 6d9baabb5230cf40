package session

import "errors"

var (
	ClosedErr = errors.New("session manager closed")
)
