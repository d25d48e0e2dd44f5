package gocd

import "errors"

var (
	ErrEmptyDocument    = errors.New("xml document contains no elements")
	ErrMissingCruise    = errors.New("server configuration has no cruise root element")
	ErrMissingVersion   = errors.New("server response is missing the X-CRUISE-CONFIG-MD5 header")
	ErrConfigConflict   = errors.New("configuration was changed on the server since it was fetched")
	ErrUnexpectedStatus = errors.New("unexpected response status from GoCD server")
)
