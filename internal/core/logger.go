package core

var DebugMode bool

type Logger interface {
	Info(v ...interface{}) error
	Infof(format string, v ...interface{}) error
	Error(v ...interface{}) error
	Errorf(format string, v ...interface{}) error
	Warning(v ...interface{}) error
	Warningf(format string, v ...interface{}) error
}

func debugLog(logger Logger, format string, v ...interface{}) {
	if DebugMode && logger != nil {
		logger.Infof("[DEBUG] "+format, v...)
	}
}
