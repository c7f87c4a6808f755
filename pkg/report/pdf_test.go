package report_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/report"
)

func TestRenderPDFProducesNonEmptyPDF(t *testing.T) {
	pdf, err := report.RenderPDF("Tariffs and supply chains", "# Summary\n\nTariffs raised costs.\n\n## Sources\n\n- example.com")
	require.NoError(t, err)
	assert.True(t, len(pdf) > 0)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestRenderPDFHandlesEmptyReport(t *testing.T) {
	pdf, err := report.RenderPDF("Empty", "")
	require.NoError(t, err)
	assert.True(t, len(pdf) > 0)
}
