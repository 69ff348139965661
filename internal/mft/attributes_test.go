package mft

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamespaceRankPrefersWin32(t *testing.T) {
	assert.Greater(t, namespaceRank(NamespaceWin32), namespaceRank(NamespaceWin32DOS))
	assert.Greater(t, namespaceRank(NamespaceWin32DOS), namespaceRank(NamespacePOSIX))
	assert.Greater(t, namespaceRank(NamespacePOSIX), namespaceRank(NamespaceDOS))
}
