package libemit

import (
	"github.com/stretchr/testify/mock"
)

type mockLogger struct {
	mock.Mock
}

func (m *mockLogger) WithField(key string, value any) Logger {
	args := m.Called(key, value)
	return args.Get(0).(Logger)
}

func (m *mockLogger) Debug(args ...any)                 { m.Called(args) }
func (m *mockLogger) Debugf(format string, args ...any) { m.Called(format, args) }
func (m *mockLogger) Debugln(args ...any)               { m.Called(args) }
func (m *mockLogger) Info(args ...any)                  { m.Called(args) }
func (m *mockLogger) Infof(format string, args ...any)  { m.Called(format, args) }
func (m *mockLogger) Infoln(args ...any)                { m.Called(args) }
func (m *mockLogger) Warn(args ...any)                  { m.Called(args) }
func (m *mockLogger) Warnf(format string, args ...any)  { m.Called(format, args) }
func (m *mockLogger) Warnln(args ...any)                { m.Called(args) }
func (m *mockLogger) Error(args ...any)                 { m.Called(args) }
func (m *mockLogger) Errorf(format string, args ...any) { m.Called(format, args) }
func (m *mockLogger) Errorln(args ...any)               { m.Called(args) }
