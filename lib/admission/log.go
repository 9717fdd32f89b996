package admission

import "github.com/go-i2p/logger"

var log = logger.GetGoI2PLogger()
