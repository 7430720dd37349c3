package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lumapix/lumapix/internal/setup/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceType represents the type of service being initialized.
type ServiceType int

const (
	ServiceWorker ServiceType = iota
	ServiceIndex
	ServiceRecommend
	ServiceExport
)

// componentName returns the log component identifier for a service type.
func (s ServiceType) componentName() string {
	switch s {
	case ServiceWorker:
		return "worker"
	case ServiceIndex:
		return "index"
	case ServiceRecommend:
		return "recommend"
	case ServiceExport:
		return "export"
	default:
		return "unknown"
	}
}

// Manager handles the creation and management of log files and directories.
// Each process run gets its own timestamped session directory.
type Manager struct {
	instanceID        string // Unique identifier for this program instance
	componentName     string // Component identifier for this instance
	currentSessionDir string // Path to the current session's log directory
	logDir            string // Base directory for all logs
	level             string // Logging level (debug, info, warn, error)
	maxLogsToKeep     int    // Maximum number of log sessions to retain
}

// NewManager creates a new Manager instance.
func NewManager(serviceType ServiceType, logDir string, debugCfg *config.Debug) *Manager {
	return &Manager{
		instanceID:    uuid.New().String(),
		componentName: serviceType.componentName(),
		logDir:        logDir,
		level:         debugCfg.LogLevel,
		maxLogsToKeep: debugCfg.MaxLogsToKeep,
	}
}

// GetLoggers initializes the session directory and returns the main and
// database loggers. Both write to separate files in the session directory;
// the main logger also writes to stderr.
func (m *Manager) GetLoggers() (*zap.Logger, *zap.Logger, error) {
	if err := m.initSessionDir(); err != nil {
		return nil, nil, err
	}

	mainLogger, err := m.buildLogger("main", true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create main logger: %w", err)
	}

	dbLogger, err := m.buildLogger("database", false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database logger: %w", err)
	}

	return mainLogger, dbLogger, nil
}

// initSessionDir creates the timestamped session directory and prunes old
// sessions beyond the retention limit.
func (m *Manager) initSessionDir() error {
	sessionName := fmt.Sprintf("%s_%s_%s",
		m.componentName, time.Now().Format("20060102_150405"), m.instanceID[:8])
	m.currentSessionDir = filepath.Join(m.logDir, sessionName)

	if err := os.MkdirAll(m.currentSessionDir, 0o755); err != nil {
		return fmt.Errorf("failed to create session log directory: %w", err)
	}

	m.pruneOldSessions()

	return nil
}

// pruneOldSessions removes the oldest session directories once the retention
// limit is exceeded. Failures are ignored; logging must not block on cleanup.
func (m *Manager) pruneOldSessions() {
	if m.maxLogsToKeep <= 0 {
		return
	}

	entries, err := os.ReadDir(m.logDir)
	if err != nil {
		return
	}

	var sessions []string

	for _, entry := range entries {
		if entry.IsDir() {
			sessions = append(sessions, entry.Name())
		}
	}

	if len(sessions) <= m.maxLogsToKeep {
		return
	}

	// Session names start with a timestamp component, so lexical order is
	// chronological within a component.
	sort.Strings(sessions)

	for _, name := range sessions[:len(sessions)-m.maxLogsToKeep] {
		os.RemoveAll(filepath.Join(m.logDir, name))
	}
}

// buildLogger assembles a zap logger writing to a named file in the session
// directory. Error-level entries are additionally forwarded to OpenTelemetry.
func (m *Manager) buildLogger(name string, console bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(m.level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	logPath := filepath.Join(m.currentSessionDir, name+".log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(logFile), level),
		NewCore(level),
	}

	if console {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(os.Stderr), level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
