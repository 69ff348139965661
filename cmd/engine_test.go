package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sandraschi/fastsearch-mcp/cfg"
	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

func TestRootCmdRegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "status", "query", "rebuild"} {
		assert.True(t, names[want], "expected subcommand %q to be registered", want)
	}
}

func TestMftcoreConfigWiresJournalEnabled(t *testing.T) {
	c := cfg.Default()
	got := mftcoreConfig(c, true)
	assert.True(t, got.AutoStartJournal)

	c.Journal.Enabled = false
	got = mftcoreConfig(c, true)
	assert.False(t, got.AutoStartJournal)
}

func TestExitCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{mfterrors.New(mfterrors.KindAccessDenied, "open", "denied"), exitInsufficientPrivilege},
		{mfterrors.New(mfterrors.KindNotFound, "open", "missing"), exitNotRunning},
		{mfterrors.New(mfterrors.KindNotNtfs, "open", "wrong fs"), exitNotRunning},
		{mfterrors.New(mfterrors.KindIoError, "open", "transient"), exitUnrecoverable},
		{errors.New("plain error"), exitUnrecoverable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codeForErr(tt.err))
	}
}
