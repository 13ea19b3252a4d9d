package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"gridshare/api/internal/grid"
	"gridshare/api/internal/imaging"
)

const (
	xlsxSheet       = "Grid"
	xlsxColumnWidth = 18
	xlsxRowHeight   = 90
)

var pictureExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// renderXLSX lays the grid out one cell per worksheet cell, with the
// background color as the border and photos anchored to their cells.
func renderXLSX(doc grid.Document) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	color := strings.TrimPrefix(doc.BgColor, "#")
	if len(color) == 3 {
		color = strings.Repeat(color[0:1], 2) + strings.Repeat(color[1:2], 2) + strings.Repeat(color[2:3], 2)
	}
	border := func(kind string) excelize.Border {
		return excelize.Border{Type: kind, Color: color, Style: 5}
	}
	cellStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Font:      &excelize.Font{Bold: true, Size: 12},
		Border:    []excelize.Border{border("left"), border("right"), border("top"), border("bottom")},
	})
	if err != nil {
		return nil, fmt.Errorf("create cell style: %w", err)
	}
	titleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 16, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
	})
	if err != nil {
		return nil, fmt.Errorf("create title style: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(max(doc.Size, 1))
	if err != nil {
		return nil, err
	}
	if err := f.SetColWidth(xlsxSheet, "A", lastCol, xlsxColumnWidth); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	if err := f.MergeCell(xlsxSheet, "A1", lastCol+"1"); err != nil {
		return nil, fmt.Errorf("merge title: %w", err)
	}
	if err := f.SetCellValue(xlsxSheet, "A1", Title(doc)); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(xlsxSheet, "A1", lastCol+"1", titleStyle); err != nil {
		return nil, err
	}

	// Grid rows start below the title row.
	for i, section := range doc.Sections {
		row, col := doc.Position(i)
		cell, err := excelize.CoordinatesToCellName(col+1, row+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(xlsxSheet, cell, section.Title); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(xlsxSheet, cell, cell, cellStyle); err != nil {
			return nil, err
		}
		if err := f.SetRowHeight(xlsxSheet, row+2, xlsxRowHeight); err != nil {
			return nil, err
		}
		if err := addPicture(f, cell, doc, i); err != nil {
			return nil, err
		}
	}

	if doc.CreatorNickname != "" {
		cell, _ := excelize.CoordinatesToCellName(1, doc.Size+3)
		if err := f.SetCellValue(xlsxSheet, cell, "photos: "+doc.CreatorNickname); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func addPicture(f *excelize.File, cell string, doc grid.Document, index int) error {
	img, ok := doc.Image(index)
	if !ok {
		return nil
	}
	mimeType, data, err := imaging.ParseDataURL(img)
	if err != nil {
		return fmt.Errorf("cell %d image: %w", index, err)
	}
	ext, ok := pictureExtensions[mimeType]
	if !ok {
		return nil
	}
	return f.AddPictureFromBytes(xlsxSheet, cell, &excelize.Picture{
		Extension: ext,
		File:      data,
		Format: &excelize.GraphicOptions{
			AutoFit:     true,
			AltText:     doc.Sections[index].Title,
			Positioning: "oneCell",
		},
	})
}
