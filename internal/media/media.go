// Package media holds the codecs and fan-out used to get frames from the
// stream manager to viewers.
package media

import (
	"github.com/lanikai/visionstream/internal/logging"
)

var log = logging.DefaultLogger.WithTag("media")
