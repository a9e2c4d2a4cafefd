package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/logrusorgru/aurora"
)

type TimeNanosecond time.Time

func (j *TimeNanosecond) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*j = TimeNanosecond(time.Unix(0, v))
	return nil
}

func (j TimeNanosecond) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(j))
}

type Entry struct {
	Ts     TimeNanosecond `json:"ts"`
	Caller string         `json:"caller"`
	Msg    string         `json:"msg"`
	Level  int            `json:"level"`

	Device     string `json:"device_name"`
	DeviceType string `json:"device_type"`
	Path       string `json:"path"`
	Session    string `json:"session"`
	Mapping    string `json:"mapping"`
	Rule       string `json:"rule"`
}

func unpack(data []byte) (Entry, error) {
	var v Entry
	err := json.Unmarshal(data, &v)
	return v, err
}

func gray(v uint8) aurora.Color {
	if v > 23 {
		v = 23
	}
	return aurora.Color(232+v) << 16
}

func color(r, g, b uint8) aurora.Color {
	return aurora.Color(16+36*r+6*g+b) << 16
}

func terminator(r rune) bool {
	return r >= 0x40 && r <= 0x7e
}

// returns pseudo-random color for string, will return the same color for the same string
func colorForString(au aurora.Aurora, s string) aurora.Value {
	h := fnv.New32a()
	h.Write([]byte(s))
	sum := h.Sum32()

	r, g, b := uint8(sum)&0b00000111, uint8(sum>>8)&0b00000111, uint8(sum>>16)&0b00000111
	if r > 5 {
		r = 5
	}
	if g > 5 {
		g = 5
	}
	if b > 5 {
		b = 5
	}

	// avoid dark colors
	if r+g+b < 3 {
		r += 1
		g += 1
		b += 1
	}

	return au.Index(16+36*r+6*g+b, s)
}

// rawStringLen returns a len of string ignoring included escape sequences
func rawStringLen(s string) int {
	var sequence bool
	var escLen, sum int

	for i, r := range s {
		if !sequence {
			if r == '\033' && i < len(s)-1 && s[i+1] == '[' {
				sequence = true
				escLen = 1
			}
			continue
		}
		escLen += 1
		if r == '[' && s[i-1] == '\033' {
			continue
		}
		if terminator(r) {
			sequence = false
			sum += escLen
			escLen = 0
		}
	}
	return len(s) - sum
}

func levelColor(level int) aurora.Color {
	switch level {
	case logger.ErrorLvl:
		return color(5, 1, 1)
	case logger.WarningLvl:
		return color(5, 5, 1)
	case logger.InfoLvl:
		return gray(20)
	case logger.ActionLvl:
		return gray(18)
	case logger.KeysLvl:
		return gray(15)
	case logger.ForwardLvl:
		return gray(13)
	case logger.AnalogLvl:
		return gray(11)
	default:
		return gray(9)
	}
}

func prepareString(msg Entry, au aurora.Aurora, logLevel int) string {
	if msg.Level > logLevel {
		return ""
	}

	t := time.Time(msg.Ts)
	timestamp := fmt.Sprintf("[%s]", au.Reset(t.Format("15:04:05.000")).Colorize(color(1, 1, 5)).String())

	var fields []string
	if msg.Mapping != "" {
		fields = append(fields, fmt.Sprintf("[mapping=%s]", colorForString(au, msg.Mapping)))
	}
	if msg.Rule != "" {
		fields = append(fields, fmt.Sprintf("[rule=%s]", colorForString(au, msg.Rule)))
	}
	if msg.Path != "" {
		fields = append(fields, fmt.Sprintf("[%s]", colorForString(au, msg.Path)))
	}
	if msg.DeviceType != "" {
		fields = append(fields, fmt.Sprintf("[type=%s]", colorForString(au, msg.DeviceType)))
	}
	if msg.Device != "" {
		fields = append(fields, fmt.Sprintf("[dev=%s]", colorForString(au, msg.Device)))
	}
	if msg.Session != "" && logLevel >= logger.DebugLvl {
		fields = append(fields, fmt.Sprintf("[session=%s]", colorForString(au, msg.Session)))
	}
	if logLevel >= logger.DebugLvl && msg.Caller != "" {
		x := strings.SplitN(msg.Caller, ":", 2)
		caller := colorForString(au, x[0]).String()
		if len(x) == 2 {
			caller += ":" + x[1]
		}
		fields = append(fields, fmt.Sprintf("(%s)", caller))
	}

	m := au.Reset(msg.Msg).Colorize(levelColor(msg.Level)).String()
	if len(fields) == 0 {
		return fmt.Sprintf("%s %s", timestamp, m)
	}
	return fmt.Sprintf("%s %s %s", timestamp, m, strings.Join(fields, " "))
}

// console prints log entries until logger.Messages is closed
type console struct {
	out      io.Writer
	au       aurora.Aurora
	logLevel int
	silent   bool
	done     chan struct{}
}

func newConsole(out io.Writer, colors bool, logLevel int, silent bool) *console {
	return &console{
		out:      out,
		au:       aurora.NewAurora(colors),
		logLevel: logLevel,
		silent:   silent,
		done:     make(chan struct{}),
	}
}

func (c *console) run() {
	defer close(c.done)
	for data := range logger.Messages {
		if c.silent {
			continue
		}
		c.write(data)
	}
}

func (c *console) write(data []byte) {
	msg, err := unpack(data)
	if err != nil {
		fmt.Fprintf(c.out, "%s\n", string(data))
		return
	}
	if s := prepareString(msg, c.au, c.logLevel); s != "" {
		fmt.Fprintf(c.out, "%s\n", s)
	}
}

func (c *console) wait() {
	<-c.done
}
