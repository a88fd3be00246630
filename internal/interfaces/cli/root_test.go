package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "syncctl", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"run"},
		{"retry"},
		{"failed", "list"},
		{"failed", "resolve"},
		{"failed", "ignore"},
		{"pending", "list"},
		{"pending", "approve"},
		{"pending", "reject"},
		{"reconcile"},
		{"status"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
		{"migrate", "force"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	output := cmd.PersistentFlags().Lookup("output")
	require.NotNil(t, output)
	assert.Equal(t, "o", output.Shorthand)
	assert.Equal(t, FormatTable, output.DefValue)

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "false", verbose.DefValue)
}

func TestOperatorFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		path     []string
		flag     string
		required bool
		def      string
	}{
		{[]string{"run"}, "by", false, TriggeredByCLI},
		{[]string{"retry"}, "by", false, TriggeredByCLI},
		{[]string{"failed", "list"}, "page-size", false, "50"},
		{[]string{"failed", "resolve"}, "by", true, ""},
		{[]string{"failed", "resolve"}, "resend", false, "false"},
		{[]string{"failed", "ignore"}, "by", true, ""},
		{[]string{"pending", "list"}, "status", false, "PENDING"},
		{[]string{"pending", "approve"}, "by", true, ""},
		{[]string{"pending", "reject"}, "reason", true, ""},
		{[]string{"migrate", "down"}, "steps", false, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.path[len(tt.path)-1]+"/"+tt.flag, func(t *testing.T) {
			sub, _, err := cmd.Find(tt.path)
			require.NoError(t, err)
			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
			_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
			assert.Equal(t, tt.required, required)
		})
	}
}
