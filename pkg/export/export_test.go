package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:    "Asistentes",
		Subtitle: "Generado 2026-01-05",
		Columns: []Column{
			{Key: "number", Label: "#", Width: 0.5},
			{Key: "name", Label: "Nombre", Width: 2},
			{Key: "church", Label: "Iglesia"},
		},
		Rows: []map[string]string{
			{"number": "1", "name": "José Núñez", "church": "Central"},
			{"number": "2", "name": "Ana, María", "church": "Norte"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, utf8BOM))

	lines := strings.Split(strings.TrimSpace(string(out[len(utf8BOM):])), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "#,Nombre,Iglesia", lines[0])
	assert.Equal(t, "1,José Núñez,Central", lines[1])
	assert.Equal(t, `2,"Ana, María",Norte`, lines[2])
}

func TestCSVExporterRequiresColumns(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestColumnWidthsSplitByWeight(t *testing.T) {
	widths := columnWidths([]Column{{Width: 1}, {Width: 3}, {}}, 100)
	assert.InDelta(t, 20, widths[0], 0.001)
	assert.InDelta(t, 60, widths[1], 0.001)
	assert.InDelta(t, 20, widths[2], 0.001)
}
