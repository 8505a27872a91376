package core

// Logger is any structured logger used by the app.
// args may carry errors, maps of extras, or the identity of the user on whose behalf the app acts.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the user attached to a log entry.
type Person struct {
	ID    string
	Name  string
	Email string
}

// PersonProvider is implemented by types that can be attached to log entries as the acting user.
type PersonProvider interface {
	LogPerson() Person
}
