package msg

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestIndentWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &IndentWriter{Indent: "  ", W: &buf}

	_, err := w.Write([]byte("moc: one\nmoc: two\n"))
	assert.NoError(t, err)
	_, err = w.Write([]byte("three"))
	assert.NoError(t, err)

	assert.Equal(t, "  moc: one\n  moc: two\n  three", buf.String())
}

func TestProgress(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	p := NewProgress(2, 0, &buf)

	p.Step("MOC", "foo.moc.cc")
	p.Step("CC", "foo.moc.o")
	p.Step("LINK", "app")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"[1/2] MOC foo.moc.cc",
		"[2/2] CC foo.moc.o",
		"[3/3] LINK app",
	}, lines)
	assert.Equal(t, 3, p.Done())
}
