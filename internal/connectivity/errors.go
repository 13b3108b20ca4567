package connectivity

import "errors"

var errNotProbed = errors.New("connectivity not probed yet")
