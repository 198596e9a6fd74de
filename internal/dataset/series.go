package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"crash-insights-go/internal/types"
)

// ParseSeriesCSV reads a bar series (weekly, day-of-week or hourly crash
// counts) from CSV.
func ParseSeriesCSV(raw []byte, city string) ([]types.BarEntry, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return parseSeriesRows(rows, city)
}

// ParseSeriesXLSX reads the same series from the first sheet of a workbook.
func ParseSeriesXLSX(raw []byte, city string) ([]types.BarEntry, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return parseSeriesRows(rows, city)
}

// parseSeriesRows detects columns by header name: the bar id is the week,
// dow or hour column, the value is pct_crash when present, else counts or
// crashes. Rows of other cities
// are skipped when a city column exists.
func parseSeriesRows(rows [][]string, city string) ([]types.BarEntry, error) {
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}
	header := rows[0]
	idIdx, labelIdx, valueIdx, shareIdx, groupIdx, cityIdx := -1, -1, -1, -1, -1, -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case l == "week" || l == "dow" || l == "hour":
			if idIdx == -1 {
				idIdx = i
			}
		case l == "dow_name" || l == "label":
			labelIdx = i
		case l == "pct_crash" || l == "share":
			shareIdx = i
		case l == "counts" || l == "count" || strings.Contains(l, "crash"):
			if valueIdx == -1 {
				valueIdx = i
			}
		case l == "weekend_lbl" || l == "group":
			groupIdx = i
		case l == "city":
			cityIdx = i
		}
	}
	if idIdx == -1 {
		return nil, fmt.Errorf("no week, dow or hour column in %v", header)
	}
	if shareIdx != -1 {
		// hourly files carry each hour's share of its group next to the count
		valueIdx = shareIdx
	}
	if valueIdx == -1 {
		// series files without a named count column keep it last
		valueIdx = len(header) - 1
		if valueIdx == idIdx {
			return nil, fmt.Errorf("no count column in %v", header)
		}
	}

	cell := func(r []string, i int) string {
		if i >= 0 && i < len(r) {
			return strings.TrimSpace(r[i])
		}
		return ""
	}
	var out []types.BarEntry
	for _, r := range rows[1:] {
		rowCity := cell(r, cityIdx)
		if city != "" && rowCity != "" && !strings.EqualFold(rowCity, city) {
			continue
		}
		id := cell(r, idIdx)
		if id == "" {
			continue
		}
		if f, err := strconv.ParseFloat(id, 64); err == nil {
			id = strconv.Itoa(int(f))
		}
		v, err := strconv.ParseFloat(cell(r, valueIdx), 64)
		if err != nil {
			// skip malformed count rows quietly
			continue
		}
		label := cell(r, labelIdx)
		if label == "" {
			label = id
		}
		if rowCity == "" {
			rowCity = city
		}
		out = append(out, types.BarEntry{ID: id, Label: label, City: rowCity, Group: cell(r, groupIdx), Value: v})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no rows for city %q", city)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})
	return out, nil
}
