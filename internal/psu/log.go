package psu

// Logging hooks. The package stays silent unless the application sets them,
// e.g. psu.DebugLogFunc = logrus.Debugf.
var (
	ErrorLogFunc func(string, ...interface{})
	InfoLogFunc  func(string, ...interface{})
	DebugLogFunc func(string, ...interface{})
)

func errorLog(format string, v ...interface{}) {
	if ErrorLogFunc != nil {
		ErrorLogFunc(format, v...)
	}
}

func infoLog(format string, v ...interface{}) {
	if InfoLogFunc != nil {
		InfoLogFunc(format, v...)
	}
}

func debugLog(format string, v ...interface{}) {
	if DebugLogFunc != nil {
		DebugLogFunc(format, v...)
	}
}
