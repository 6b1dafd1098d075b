package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterAddrsByFamilyKeepsMatchingFamily(t *testing.T) {
	addrs := []string{"192.168.1.5:9001", "[fe80::1]:9001", "10.0.0.2:9001"}

	v4 := FilterAddrsByFamily(addrs, true)
	require.ElementsMatch(t, []string{"192.168.1.5:9001", "10.0.0.2:9001"}, v4)

	v6 := FilterAddrsByFamily(addrs, false)
	require.ElementsMatch(t, []string{"[fe80::1]:9001"}, v6)
}

func TestFilterAddrsByFamilyEmptyResultIsNotAnError(t *testing.T) {
	addrs := []string{"[fe80::1]:9001"}
	got := FilterAddrsByFamily(addrs, true)
	require.Empty(t, got)
}

func TestFilterAddrsByFamilySkipsUnparseable(t *testing.T) {
	got := FilterAddrsByFamily([]string{"not-an-addr"}, true)
	require.Empty(t, got)
}
