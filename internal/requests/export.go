package requests

import (
	"bytes"
	"encoding/csv"
	"time"
)

// CSVExporter renders ledger entries for download.
type CSVExporter struct{}

// WriteCSV encodes the ledger rows, header first.
func (CSVExporter) WriteCSV(entries []PermissionRequest) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	writer.UseCRLF = true

	header := []string{"id", "user_id", "user_email", "permission", "status", "created_at", "reviewed_at", "reviewed_by"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		reviewedAt := ""
		if entry.ReviewedAt != nil {
			reviewedAt = entry.ReviewedAt.UTC().Format(time.RFC3339)
		}
		reviewedBy := ""
		if entry.ReviewedBy != nil {
			reviewedBy = entry.ReviewedBy.String()
		}
		row := []string{
			entry.ID.String(),
			entry.UserID.String(),
			entry.UserEmail,
			string(entry.Permission),
			string(entry.Status),
			entry.CreatedAt.UTC().Format(time.RFC3339),
			reviewedAt,
			reviewedBy,
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
