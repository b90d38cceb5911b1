package stats

import "github.com/stretchr/testify/mock"

type MockStatsProvider struct {
	mock.Mock
}

// NewRelaxedMock returns a mock that accepts any counter traffic, for
// tests that don't assert on metrics.
func NewRelaxedMock() *MockStatsProvider {
	m := &MockStatsProvider{}
	m.On("RegisterMetric", mock.Anything).Return()
	m.On("Incr", mock.Anything).Return()
	m.On("Decr", mock.Anything).Return()
	m.On("Run").Return()
	return m
}

func (m *MockStatsProvider) Incr(name string) {
	m.Called(name)
}

func (m *MockStatsProvider) Decr(name string) {
	m.Called(name)
}

func (m *MockStatsProvider) RegisterMetric(name string) {
	m.Called(name)
}

func (m *MockStatsProvider) Run() {
	m.Called()
}
