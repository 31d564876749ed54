package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (lv LogLevel) String() string {
	if lv < DEBUG || lv > FATAL {
		return "INFO"
	}
	return levelNames[lv]
}

// ParseLevel accepts a level name in any case. Unknown names mean INFO.
func ParseLevel(s string) LogLevel {
	for i, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return LogLevel(i)
		}
	}
	return INFO
}

var (
	levelColors = map[LogLevel]*color.Color{
		DEBUG: color.New(color.FgCyan),
		INFO:  color.New(color.FgGreen),
		WARN:  color.New(color.FgYellow),
		ERROR: color.New(color.FgRed),
		FATAL: color.New(color.FgRed, color.Bold),
	}
	categoryColors = map[LogLevel]*color.Color{
		DEBUG: color.New(color.FgCyan, color.Bold),
		INFO:  color.New(color.FgGreen, color.Bold),
		WARN:  color.New(color.FgYellow, color.Bold),
		ERROR: color.New(color.FgRed, color.Bold),
		FATAL: color.New(color.FgRed, color.Bold),
	}
	timeColor = color.New(color.FgBlue)
	fileColor = color.New(color.FgMagenta)
)

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// Logger writes JSON lines to a sink and, for service binaries, a colored
// line to stdout.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	sink     io.Writer
	terminal bool
	min      LogLevel
}

// New returns a logger that writes JSON lines to w only.
func New(w io.Writer) *Logger {
	return &Logger{sink: w, min: DEBUG}
}

// NewLogger logs to stdout and to a daily file under LOG_DIR (default
// "logs"). LOG_LEVEL sets the minimum level.
func NewLogger() *Logger {
	dir := os.Getenv("LOG_DIR")
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatal("Failed to create logs directory:", err)
	}

	name := filepath.Join(dir, fmt.Sprintf("booking-%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal("Failed to create log file:", err)
	}

	l := &Logger{
		file:     file,
		sink:     file,
		terminal: true,
		min:      ParseLevel(os.Getenv("LOG_LEVEL")),
	}
	l.Info("LOGGER", fmt.Sprintf("Logging at %s to %s", l.min, name))
	return l
}

func (l *Logger) SetLevel(lv LogLevel) {
	l.mu.Lock()
	l.min = lv
	l.mu.Unlock()
}

func (l *Logger) log(level LogLevel, category, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.min && level != FATAL {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     level.String(),
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	if l.terminal {
		fmt.Print(terminalLine(level, entry))
	}
	if l.sink != nil {
		b, _ := json.Marshal(entry)
		l.sink.Write(append(b, '\n'))
	}
}

func terminalLine(level LogLevel, entry LogEntry) string {
	out := fmt.Sprintf("%s %s %s %s",
		timeColor.Sprint(entry.Timestamp[11:19]),
		levelColors[level].Sprintf("%-5s", entry.Level),
		categoryColors[level].Sprintf("[%-10s]", entry.Category),
		entry.Message,
	)
	if entry.File != "" && entry.Line > 0 {
		out += fileColor.Sprintf(" (%s:%d)", entry.File, entry.Line)
	}
	return out + "\n"
}

func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	l.Close()
	os.Exit(1)
}

// Component helpers keep message shapes consistent across packages.
func (l *Logger) LogBooking(action, bookingID, message string) {
	l.Info("BOOKING", fmt.Sprintf("[%s] %s - %s", action, bookingID, message))
}

func (l *Logger) LogPayment(action, reference, message string) {
	l.Info("PAYMENT", fmt.Sprintf("[%s] %s - %s", action, reference, message))
}

func (l *Logger) LogSweep(operation, message string) {
	l.Info("SWEEPER", fmt.Sprintf("[%s] %s", operation, message))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.Info("API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.Info("KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.Info("DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.Warn("SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
		l.sink = nil
	}
}
