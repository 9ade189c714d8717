//////////////////////////////////////////////////////////////////////////////
//
// Media errors
//
//////////////////////////////////////////////////////////////////////////////

package media

import "errors"

var (
	errInvalidImage      = errors.New("invalid image")
	errUnsupportedFormat = errors.New("unsupported pixel format")
)
