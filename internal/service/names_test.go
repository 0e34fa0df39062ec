package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "María José", canonicalName("  maría   JOSÉ "))
	assert.Equal(t, "De La Peña", canonicalName("de la peña"))
	assert.Equal(t, "", canonicalName("   "))
}

func TestFoldSearch(t *testing.T) {
	assert.Equal(t, "jose pena", foldSearch("José  Peña"))
	assert.Equal(t, "muller", foldSearch("MÜLLER"))
	assert.Equal(t, "ana perez", searchKey("Ana", "Pérez"))
}
