package cmd

import (
	"bytes"
	"fmt"
	"github.com/iamwookie/qadir-bot/qadir"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	originalVersion := qadir.Version
	originalCommitSHA := qadir.CommitSHA
	originalBuildTime := qadir.BuildTime

	t.Cleanup(
		func() {
			qadir.Version = originalVersion
			qadir.CommitSHA = originalCommitSHA
			qadir.BuildTime = originalBuildTime
			versionCmd.SetOut(nil)
		},
	)

	qadir.Version = "1.0.0"
	qadir.CommitSHA = "abc123"
	qadir.BuildTime = "2025-10-01T12:00:00Z"

	buf := &bytes.Buffer{}
	versionCmd.SetOut(buf)
	versionCmd.Run(versionCmd, nil)

	expected := fmt.Sprintf(
		"version=%s commit=%s built: %s",
		qadir.Version,
		qadir.CommitSHA,
		qadir.BuildTime,
	)
	assert.Equal(t, expected, buf.String())
}
