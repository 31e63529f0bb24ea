package model

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelCutsFlag(t *testing.T) {
	cuts := LevelCuts{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(cuts, "cut", "")
	require.NoError(t, fs.Parse([]string{
		"-cut", "hit=daqenergy > 100",
		"-cut", "evt=multiplicity == 1",
		"-cut", "hit=bl_mean < 5",
	}))
	require.Equal(t, LevelCuts{
		"hit": "(daqenergy > 100) and (bl_mean < 5)",
		"evt": "multiplicity == 1",
	}, cuts)
	require.Equal(t, "evt=multiplicity == 1;hit=(daqenergy > 100) and (bl_mean < 5)", cuts.String())
	require.Error(t, cuts.Set("daqenergy > 100"))
	require.Error(t, cuts.Set("hit="))
}

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"daqenergy", "channel"}, SplitList(" daqenergy,,channel "))
	require.Nil(t, SplitList(""))
}
