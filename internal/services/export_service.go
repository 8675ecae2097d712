package services

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/chronolens/chronolens/pkg/logger"
)

// ExportService renders a completed analysis as an Excel workbook with
// contributor, ownership, and activity sheets.
type ExportService struct {
	ownership *OwnershipService
}

// NewExportService creates a new export service
func NewExportService(ownership *OwnershipService) *ExportService {
	return &ExportService{ownership: ownership}
}

// BuildWorkbook assembles the report for one analyzed repository
func (s *ExportService) BuildWorkbook(result *AnalysisResult) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := s.writeContributorsSheet(f, result); err != nil {
		return nil, err
	}
	if err := s.writeOwnershipSheet(f, result); err != nil {
		return nil, err
	}
	if err := s.writeActivitySheet(f, result); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	logger.WithComponent("export").WithField("repo_id", result.Snapshot.ID).
		Infof("built report workbook with %d contributors", len(result.Contributors))
	return f, nil
}

func (s *ExportService) writeContributorsSheet(f *excelize.File, result *AnalysisResult) error {
	const sheet = "Contributors"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headers := []string{"Name", "Email", "Commits", "Share %", "Lines Added", "Lines Removed", "Lines Owned", "First Commit", "Last Commit"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}

	for row, stat := range result.Contributors {
		values := []interface{}{
			stat.Name, stat.Email, stat.Commits,
			fmt.Sprintf("%.1f", stat.Percentage),
			stat.Additions, stat.Deletions,
			int(stat.LinesOwned),
			stat.FirstCommit.Format("2006-01-02"),
			stat.LastCommit.Format("2006-01-02"),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ExportService) writeOwnershipSheet(f *excelize.File, result *AnalysisResult) error {
	const sheet = "Ownership"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Path", "Top Owner", "Top Owner %", "Owners", "Last Touch"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}

	row := 2
	for _, path := range result.Ownership.LiveFiles() {
		breakdown, err := result.Ownership.Breakdown(path)
		if err != nil {
			continue
		}

		topOwner, topShare := "", 0.0
		if len(breakdown.Owners) > 0 {
			topOwner = breakdown.Owners[0].IdentityKey
			topShare = breakdown.Owners[0].Percentage
			if identity, ok := result.Resolution.Get(topOwner); ok && identity.Name != "" {
				topOwner = identity.Name
			}
		}

		values := []interface{}{
			path, topOwner, fmt.Sprintf("%.1f", topShare),
			len(breakdown.Owners), breakdown.LastTouch.Format("2006-01-02"),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
		row++
	}
	return nil
}

func (s *ExportService) writeActivitySheet(f *excelize.File, result *AnalysisResult) error {
	const sheet = "Activity"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	patterns := result.Trends.Patterns()
	rows := [][]interface{}{
		{"Total commits", patterns.TotalCommits},
		{"Average message length", fmt.Sprintf("%.0f", patterns.AvgMessageLength)},
		{"Most active hour (UTC)", patterns.MostActiveHour},
		{"Most active day", patterns.MostActiveDay},
	}
	for name, count := range patterns.MessageTypes {
		rows = append(rows, []interface{}{"Commits: " + name, count})
	}

	for i, pair := range rows {
		for col, value := range pair {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+1)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}
