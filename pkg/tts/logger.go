package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	logPath = "logs/tts.log"
	mu      sync.RWMutex
)

// SetLogPath configures the path for the TTS log file. An empty path disables it.
func SetLogPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	logPath = path
}

// Log appends one synthesis attempt to the TTS log file.
func Log(provider string, req Request, status int, err error) {
	mu.RLock()
	path := logPath
	mu.RUnlock()
	if path == "" {
		return
	}

	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	f, fileErr := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if fileErr != nil {
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	statusStr := fmt.Sprintf("%d", status)
	if err != nil {
		statusStr = fmt.Sprintf("ERROR(%v)", err)
	}

	// [TIMESTAMP] [PROVIDER] purpose/style/lang STATUS: <code>
	entry := fmt.Sprintf("[%s] [%s] %s/%s/%s STATUS: %s\nTEXT:\n%s\n--------------------------------------------------\n",
		timestamp, provider, req.Purpose, req.VoiceStyle, req.Lang, statusStr, req.Text)

	_, _ = f.WriteString(entry)
}
