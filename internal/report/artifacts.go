package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportFileName returns the per-distributor workbook name inside the report
// archive. Distributor names are free text typed by reviewers, so
// filesystem-hostile runes are replaced.
func ExportFileName(dsp string) string {
	return fmt.Sprintf("%s_report.xlsx", sanitizeFilename(dsp))
}

// ArchiveFileName returns the dated name the report archive is written under.
func ArchiveFileName(reportDate time.Time) string {
	return fmt.Sprintf("DSP_Reports_%s.zip", reportDate.Format("20060102"))
}

// WriteArchiveFile writes the report archive into the output directory and
// returns the path.
func WriteArchiveFile(archive []byte, outputDir string, reportDate time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, ArchiveFileName(reportDate))
	return path, os.WriteFile(path, archive, 0644)
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	return replacer.Replace(s)
}
