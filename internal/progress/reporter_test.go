package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTurnForwardsToReporter(t *testing.T) {
	var buf bytes.Buffer
	turn := StartTurn(NewCIReporter(&buf), 3)
	turn.Notify("Thinking...")
	turn.Notify("Generating images...")
	turn.Finish()

	assert.Equal(t, 2, turn.Steps())
	assert.Equal(t, "[1/3] Thinking...\n[2/3] Generating images...\nDone\n", buf.String())
}

func TestCIReporterWithoutTotal(t *testing.T) {
	var buf bytes.Buffer
	turn := StartTurn(NewCIReporter(&buf), -1)
	turn.Notify("Thinking...")
	assert.Equal(t, "[1] Thinking...\n", buf.String())
}

func TestTerminalReporterWithoutStart(t *testing.T) {
	r := &TerminalReporter{}
	r.Update(1, "ignored")
	r.Finish()
}
