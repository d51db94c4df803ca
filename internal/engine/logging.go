package engine

import (
	"github.com/sirupsen/logrus"
)

func (e *Engine) logEntry() *logrus.Entry {
	return e.log.Entry("engine", e.symbol)
}
