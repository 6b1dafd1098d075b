package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersRunSubcommand(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["run"])
}

func TestPersistentLogFlagsHaveDefaults(t *testing.T) {
	level := rootCmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, level)
	require.Equal(t, "info", level.DefValue)

	jsonOut := rootCmd.PersistentFlags().Lookup("log-json")
	require.NotNil(t, jsonOut)
	require.Equal(t, "false", jsonOut.DefValue)
}

func TestRunFlagsHaveDefaults(t *testing.T) {
	cfgFlag := runCmd.Flags().Lookup("config")
	require.NotNil(t, cfgFlag)
	require.NotEmpty(t, cfgFlag.DefValue)

	metricsFlag := runCmd.Flags().Lookup("metrics-addr")
	require.NotNil(t, metricsFlag)
	require.Equal(t, "127.0.0.1:9090", metricsFlag.DefValue)
}
