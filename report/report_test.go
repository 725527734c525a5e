package report

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/sitecheck/models"
)

func sampleReport(t *testing.T) *models.SessionReport {
	t.Helper()
	s, err := models.NewSession("example.com", 1, 10)
	require.NoError(t, err)
	res := models.NewSessionResult(s)

	home := models.NewPageResult(s.BaseURL, 0)
	home.Title = "Home"
	home.Add("page_load", true, "Loaded in 120ms")
	home.Add("broken_links", false, "1 broken link(s) of 2 checked: http://example.com/gone (404)")
	res.Add(home)

	about := models.NewPageResult(s.BaseURL+"/about", 1)
	about.Add("page_load", true, "Loaded in 80ms")
	about.Add("forms_detected", true, "No forms on page")
	res.Add(about)

	res.Finish(models.StopCompleted)
	return res.Report()
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport(t)))

	var got models.SessionReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got.TotalPages)
	assert.Equal(t, 3, got.TotalPassed)
	assert.Equal(t, 1, got.TotalFailed)
	assert.Equal(t, "http://example.com/about", got.Pages[1].URL)
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, sampleReport(t)))
	out := buf.String()

	assert.Contains(t, out, "Site check: http://example.com")
	assert.Contains(t, out, `<td class="fail">FAIL</td><td>broken_links</td>`)
	assert.Contains(t, out, "(no title)")
	assert.Contains(t, out, "(completed)")
}

func TestWriteSummary_FailuresOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, sampleReport(t)))
	out := buf.String()

	assert.Contains(t, out, "Pages: 2  Passed: 3  Failed: 1")
	assert.Contains(t, out, "FAIL broken_links")
	assert.NotContains(t, out, "http://example.com/about", "pages without failures are omitted")
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	rep := sampleReport(t)
	files, err := WriteFiles(dir, rep)
	require.NoError(t, err)

	for _, p := range []string{files.JSON, files.HTML} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	assert.Contains(t, files.JSON, rep.Session.ID)
}
