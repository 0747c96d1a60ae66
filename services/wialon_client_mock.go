package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockWialonClient мок клиент для тестирования
// Реализует интерфейс WialonClientInterface
type MockWialonClient struct {
	mu sync.Mutex

	// Настройки мока
	ShouldFailHealth bool
	AuthDelay        time.Duration
	FetchDelay       time.Duration

	// Ошибки по номеру вызова (1-based). Вызовы сверх списка успешны.
	AuthErrors  []error
	FetchErrors []error

	// Данные для возврата
	Session *WialonSession
	Units   []RawUnitRecord

	// Счетчики вызовов
	AuthCallCount   int
	FetchCallCount  int
	HealthCallCount int

	// Логи вызовов
	FetchCalls []FetchCall
}

// FetchCall запись вызова FetchUnits
type FetchCall struct {
	SID  string
	Time time.Time
}

// NewMockWialonClient создает новый мок клиент
func NewMockWialonClient(units ...RawUnitRecord) *MockWialonClient {
	return &MockWialonClient{
		Session: &WialonSession{SID: "mock_sid_123"},
		Units:   units,
	}
}

// Authenticate мок авторизации
func (m *MockWialonClient) Authenticate(ctx context.Context) (*WialonSession, error) {
	m.mu.Lock()
	m.AuthCallCount++
	call := m.AuthCallCount
	m.mu.Unlock()

	if err := waitMock(ctx, m.AuthDelay); err != nil {
		return nil, err
	}

	if call <= len(m.AuthErrors) && m.AuthErrors[call-1] != nil {
		return nil, m.AuthErrors[call-1]
	}

	session := *m.Session
	return &session, nil
}

// FetchUnits мок получения юнитов
func (m *MockWialonClient) FetchUnits(ctx context.Context, sid string) ([]RawUnitRecord, error) {
	m.mu.Lock()
	m.FetchCallCount++
	call := m.FetchCallCount
	m.FetchCalls = append(m.FetchCalls, FetchCall{SID: sid, Time: time.Now()})
	m.mu.Unlock()

	if err := waitMock(ctx, m.FetchDelay); err != nil {
		return nil, err
	}

	if call <= len(m.FetchErrors) && m.FetchErrors[call-1] != nil {
		return nil, m.FetchErrors[call-1]
	}

	units := make([]RawUnitRecord, len(m.Units))
	copy(units, m.Units)
	return units, nil
}

// IsHealthy мок проверки здоровья
func (m *MockWialonClient) IsHealthy(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCallCount++
	m.mu.Unlock()

	if m.ShouldFailHealth {
		return fmt.Errorf("мок ошибка проверки здоровья")
	}
	return nil
}

func waitMock(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
