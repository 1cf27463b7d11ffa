package app

import (
	"github.com/moontrade/backbone/config"
	"github.com/moontrade/backbone/logger"
)

func logInit(conf Config, s config.Config) *logger.Logger {
	level, err := logger.ParseLevel(s.Log.Level)
	if err != nil {
		// settings were validated
		panic(err)
	}
	log := logger.New(logger.Options{
		Output: conf.LogOutput,
		Level:  level,
		JSON:   s.Log.JSON,
	})
	log.Warn("starting %s", versline(conf))
	return log
}
