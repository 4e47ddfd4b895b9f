// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTitleForFilenameStripsDiacritics(t *testing.T) {
	assert.Equal(t, "Cafe con leche", SanitizeTitleForFilename("Café con leche"))
}

func TestSanitizeTitleForFilenameReplacesForbiddenCharacters(t *testing.T) {
	assert.Equal(t, "a_b_c_d_e_f_g_h", SanitizeTitleForFilename(`a<b>c:d"e/f\g|h`))
}

func TestSanitizeTitleForFilenameLeavesPlainASCIIUnchanged(t *testing.T) {
	assert.Equal(t, "Regular upload title", SanitizeTitleForFilename("Regular upload title"))
}
