package clock

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "clock")
