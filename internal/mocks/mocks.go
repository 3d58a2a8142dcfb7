// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/chatprobe/internal/browser"
	"github.com/xkilldash9x/chatprobe/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Target() config.TargetConfig {
	args := m.Called()
	return args.Get(0).(config.TargetConfig)
}

func (m *MockConfig) Wait() config.WaitConfig {
	args := m.Called()
	return args.Get(0).(config.WaitConfig)
}

func (m *MockConfig) Run() config.RunConfig {
	args := m.Called()
	return args.Get(0).(config.RunConfig)
}

func (m *MockConfig) Report() config.ReportConfig {
	args := m.Called()
	return args.Get(0).(config.ReportConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Demo() config.DemoConfig {
	args := m.Called()
	return args.Get(0).(config.DemoConfig)
}

// --- Setters ---

func (m *MockConfig) SetRunParallelism(n int)   { m.Called(n) }
func (m *MockConfig) SetRunSuites(s []string)   { m.Called(s) }
func (m *MockConfig) SetBrowserHeadless(b bool) { m.Called(b) }
func (m *MockConfig) SetTargetURL(u string)     { m.Called(u) }
func (m *MockConfig) SetTargetWidget(w string)  { m.Called(w) }

// -- Browser Mocks --

// MockDriver mocks browser.Driver.
type MockDriver struct {
	mock.Mock
}

var _ browser.Driver = (*MockDriver)(nil)

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockDriver) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) Find(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	args := m.Called(ctx, loc)
	if el := args.Get(0); el != nil {
		return el.(browser.Element), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) FindAll(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	args := m.Called(ctx, loc)
	if els := args.Get(0); els != nil {
		return els.([]browser.Element), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) SaveScreenshot(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockDriver) Quit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockElement mocks browser.Element.
type MockElement struct {
	mock.Mock
}

var _ browser.Element = (*MockElement)(nil)

func (m *MockElement) Click(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockElement) Clear(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockElement) Type(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockElement) PressEnter(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockElement) SetFiles(ctx context.Context, paths ...string) error {
	return m.Called(ctx, paths).Error(0)
}

func (m *MockElement) IsDisplayed(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) IsEnabled(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockLauncher mocks browser.Launcher.
type MockLauncher struct {
	mock.Mock
}

var _ browser.Launcher = (*MockLauncher)(nil)

func (m *MockLauncher) Launch(ctx context.Context) (browser.Driver, error) {
	args := m.Called(ctx)
	if d := args.Get(0); d != nil {
		return d.(browser.Driver), args.Error(1)
	}
	return nil, args.Error(1)
}
