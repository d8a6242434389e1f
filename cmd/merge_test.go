package cmd

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFlag(t *testing.T, flags *pflag.FlagSet, name string) *pflag.Flag {
	t.Helper()
	f := flags.Lookup(name)
	require.NotNil(t, f, "flag %q not registered", name)
	return f
}

func TestMergeCommandFlags(t *testing.T) {
	f := lookupFlag(t, mergeCmd.Flags(), "ensure-tables")
	assert.Equal(t, "false", f.DefValue)
}

func TestCheckCommandFlags(t *testing.T) {
	f := lookupFlag(t, checkCmd.Flags(), "as-of")
	assert.Equal(t, "", f.DefValue)
}

func TestReportCommandFlags(t *testing.T) {
	assert.Equal(t, "genres", lookupFlag(t, reportCmd.Flags(), "view").DefValue)
	assert.Equal(t, "10", lookupFlag(t, reportCmd.Flags(), "top").DefValue)
}

func TestPersistentFlags(t *testing.T) {
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("quiet"))
}
