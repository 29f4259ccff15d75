package logging

import (
	"fmt"
	"sort"
	"sync"
)

// LoggerManager реестр логгеров компонентов (simulator, http, ...)
type LoggerManager struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = NewLoggerManager()
	})
	return globalManager
}

// NewLoggerManager создаёт пустой реестр
func NewLoggerManager() *LoggerManager {
	return &LoggerManager{loggers: make(map[string]*Logger)}
}

// Register добавляет готовый логгер под именем компонента
func (lm *LoggerManager) Register(component string, logger *Logger) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.loggers[component] = logger
}

// Lookup логгер компонента, если он зарегистрирован
func (lm *LoggerManager) Lookup(component string) (*Logger, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	logger, ok := lm.loggers[component]
	return logger, ok
}

// Open создаёт файловый логгер компонента и регистрирует его; повторный вызов возвращает существующий
func (lm *LoggerManager) Open(component string) (*Logger, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if logger, exists := lm.loggers[component]; exists {
		return logger, nil
	}
	logger, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger for %s: %w", component, err)
	}
	lm.loggers[component] = logger
	return logger, nil
}

// SetLevels применяет пороги ко всем зарегистрированным логгерам
func (lm *LoggerManager) SetLevels(consoleLevel, fileLevel LogLevel) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	for _, logger := range lm.loggers {
		logger.SetLevels(consoleLevel, fileLevel)
	}
}

// CloseAll закрывает все логгеры и очищает реестр
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var lastErr error
	for component, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close logger for %s: %w", component, err)
		}
	}
	lm.loggers = make(map[string]*Logger)
	return lastErr
}

// Components отсортированный список компонентов
func (lm *LoggerManager) Components() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	components := make([]string, 0, len(lm.loggers))
	for component := range lm.loggers {
		components = append(components, component)
	}
	sort.Strings(components)
	return components
}

// Component логгер компонента из глобального реестра, иначе логгер по умолчанию (может быть nil)
func Component(component string) *Logger {
	if logger, ok := GetLoggerManager().Lookup(component); ok {
		return logger
	}
	return DefaultLogger()
}
