package cidutil

import "errors"

var (
	ErrUndefined   = errors.New("cidutil: undefined cid")
	ErrUnsupported = errors.New("cidutil: cid is not v1 raw sha2-256")
)
