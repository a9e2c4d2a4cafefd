package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Messages receives every encoded log entry, consumer is responsible for draining it
var Messages = make(chan []byte, 512)

const (
	ErrorLvl   = 0
	WarningLvl = 1
	InfoLvl    = 2
	ActionLvl  = 3 // injector lifecycle, macro triggers
	KeysLvl    = 4 // remapped keys
	ForwardLvl = 5 // events forwarded unchanged
	AnalogLvl  = 6 // joystick to mouse conversion

	DebugLvl = 378
)

var (
	Error   = zap.Int("level", ErrorLvl)
	Warning = zap.Int("level", WarningLvl)
	Info    = zap.Int("level", InfoLvl)
	Action  = zap.Int("level", ActionLvl)
	Keys    = zap.Int("level", KeysLvl)
	Forward = zap.Int("level", ForwardLvl)
	Analog  = zap.Int("level", AnalogLvl)

	Debug = zap.Int("level", DebugLvl)
)

type chanWriter struct {
	sync.Mutex
}

func (w *chanWriter) Write(p []byte) (n int, err error) {
	w.Lock()
	var newSlice = make([]byte, len(p))
	copy(newSlice, p)
	Messages <- newSlice
	w.Unlock()
	return len(p), nil
}

func (w *chanWriter) Sync() error {
	return nil
}

var (
	once   sync.Once
	shared *zap.Logger
)

// GetLogger returns process-wide logger, entries are JSON encoded and pushed into Messages channel
func GetLogger() *zap.Logger {
	once.Do(func() {
		writer := &chanWriter{}
		cfg := zap.NewProductionEncoderConfig()
		cfg.SkipLineEnding = true
		cfg.EncodeTime = zapcore.EpochNanosTimeEncoder
		cfg.LevelKey = ""
		encoder := zapcore.NewJSONEncoder(cfg)
		shared = zap.New(
			zapcore.NewCore(encoder, zapcore.Lock(writer), zap.DebugLevel),
			zap.AddCaller(),
		)
	})
	return shared
}

// Discard drains Messages in the background, useful for tests and silent mode
func Discard() {
	go func() {
		for range Messages {
		}
	}()
}
