package log

import (
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// logTypeEmoji 对应 LogHelper 写入的 "type" 字段
var logTypeEmoji = map[string]string{
	"api":          "🔗",
	"request":      "🌐",
	"retry":        "🔁",
	"upload":       "📤",
	"fallback":     "🔀",
	"cancel":       "🛑",
	"breaker":      "🧯",
	"rate_limit":   "🚦",
	"success":      "✅",
	"redis":        "📦",
	"database":     "💾",
	"scheduler":    "🎯",
	"startup":      "🚀",
	"slow_request": "🐌",
}

var levelEmoji = map[zapcore.Level]string{
	zapcore.DebugLevel:  "🐛",
	zapcore.InfoLevel:   "ℹ️",
	zapcore.WarnLevel:   "⚠️",
	zapcore.ErrorLevel:  "❌",
	zapcore.DPanicLevel: "❌",
	zapcore.PanicLevel:  "❌",
	zapcore.FatalLevel:  "❌",
}

// statusEmoji colours an HTTP status by class.
func statusEmoji(status int64) string {
	switch status / 100 {
	case 5:
		return "🔴"
	case 4:
		return "🟠"
	case 3:
		return "🟡"
	default:
		return "🟢"
	}
}

// emojiFor picks the prefix of one record: an HTTP status wins over the
// record type, which wins over the level.
func emojiFor(level zapcore.Level, fields []zapcore.Field) string {
	var logType string
	for _, f := range fields {
		switch {
		case f.Key == "status" && isIntField(f) && f.Integer > 0:
			return statusEmoji(f.Integer)
		case f.Key == "type" && f.Type == zapcore.StringType:
			logType = f.String
		}
	}
	if e, ok := logTypeEmoji[logType]; ok {
		return e
	}
	return levelEmoji[level]
}

func isIntField(f zapcore.Field) bool {
	switch f.Type {
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
		return true
	}
	return false
}

// emojiEncoder prefixes console messages with an emoji.
type emojiEncoder struct {
	zapcore.Encoder
}

// NewEmojiConsoleEncoder wraps zap's console encoder for development output.
func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return emojiEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

func (enc emojiEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if e := emojiFor(entry.Level, fields); e != "" {
		entry.Message = e + " " + entry.Message
	}
	return enc.Encoder.EncodeEntry(entry, fields)
}

func (enc emojiEncoder) Clone() zapcore.Encoder {
	return emojiEncoder{Encoder: enc.Encoder.Clone()}
}
