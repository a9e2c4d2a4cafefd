package main

import (
	"bytes"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/logrusorgru/aurora"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Discard()
	os.Exit(m.Run())
}

func TestRawStringLen(t *testing.T) {
	for i, tc := range []struct {
		input    string
		expected int
	}{
		{input: "", expected: 0},
		{input: "a", expected: 1},
		{input: "a\033", expected: 2},
		{input: "a\033[", expected: 3},
		{input: "a\033[2", expected: 4},
		{input: "a\033[2A", expected: 1},
		{input: "a\033[2Aa", expected: 2},
		{input: aurora.Red("Keyboard").String(), expected: 8},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			l := rawStringLen(tc.input)
			assert.Equal(t, tc.expected, l)
		})
	}
}

func TestUnpack(t *testing.T) {
	data := []byte(`{"ts":1666000000123000000,"caller":"injector/injector.go:120","msg":"Injection started",` +
		`"device_name":"keyboard","session":"cdfk2h0","level":3}`)

	e, err := unpack(data)
	require.NoError(t, err)
	assert.Equal(t, "Injection started", e.Msg)
	assert.Equal(t, logger.ActionLvl, e.Level)
	assert.Equal(t, "keyboard", e.Device)
	assert.Equal(t, "cdfk2h0", e.Session)
	assert.Equal(t, time.Unix(0, 1666000000123000000), time.Time(e.Ts))

	_, err = unpack([]byte("not json"))
	assert.Error(t, err)
}

func TestPrepareString(t *testing.T) {
	au := aurora.NewAurora(false)
	entry := Entry{
		Ts:      TimeNanosecond(time.Now()),
		Caller:  "mapping/loader.go:42",
		Msg:     "key remapped",
		Level:   logger.KeysLvl,
		Device:  "keyboard",
		Session: "cdfk2h0",
	}

	assert.Empty(t, prepareString(entry, au, logger.InfoLvl))
	assert.Empty(t, prepareString(entry, au, logger.ActionLvl))

	s := prepareString(entry, au, logger.KeysLvl)
	assert.Contains(t, s, "key remapped")
	assert.Contains(t, s, "[dev=keyboard]")
	assert.NotContains(t, s, "session")
	assert.NotContains(t, s, "loader.go")

	s = prepareString(entry, au, logger.DebugLvl)
	assert.Contains(t, s, "[session=cdfk2h0]")
	assert.Contains(t, s, "(mapping/loader.go:42)")
}

func TestConsoleWrite(t *testing.T) {
	out := &bytes.Buffer{}
	c := newConsole(out, false, logger.InfoLvl, false)

	c.write([]byte(`{"ts":1,"msg":"device connected","level":2,"mapping":"kbd.toml"}`))
	c.write([]byte(`{"ts":1,"msg":"forwarded","level":5}`))
	c.write([]byte("garbage"))

	assert.Contains(t, out.String(), "device connected [mapping=kbd.toml]")
	assert.NotContains(t, out.String(), "forwarded")
	assert.Contains(t, out.String(), "garbage\n")
}
