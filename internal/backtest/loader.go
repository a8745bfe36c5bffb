package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"VolPulse/pkg/util"
)

// LoadCSV reads an hourly series of timestamp,spot,dvol rows, optionally
// extended with skew and term_spread columns for the VRP regression. A
// header row is skipped when the first field does not parse as a time.
// Rows must already be in chronological order.
func LoadCSV(path string) ([]Bar, []Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open series: %w", err)
	}
	defer f.Close()
	return ReadSeries(f)
}

// ReadSeries parses CSV bars from r. The returned Row slice is non-empty
// only when the five-column format is used.
func ReadSeries(r io.Reader) ([]Bar, []Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var bars []Bar
	var rows []Row
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read series row %d: %w", line, err)
		}
		line++
		if len(record) < 3 {
			return nil, nil, fmt.Errorf("series row %d has %d fields, want at least 3", line, len(record))
		}
		if _, ok := util.ParseTime(strings.TrimSpace(record[0])); !ok {
			if line == 1 {
				// header
				continue
			}
			return nil, nil, fmt.Errorf("series row %d has invalid timestamp %q", line, record[0])
		}
		fields := make([]float64, len(record)-1)
		for i := 1; i < len(record); i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("series row %d field %d: %w", line, i, err)
			}
			fields[i-1] = v
		}

		spot, dvol := fields[0], fields[1]
		bars = append(bars, Bar{Spot: spot, DVOL: dvol})
		if len(fields) >= 4 {
			rv := dvol/100 - 0.1
			if rv < 0 {
				rv = 0
			}
			rows = append(rows, Row{
				DVOL:        dvol,
				RealizedVol: rv,
				Skew:        fields[2],
				TermSpread:  fields[3],
			})
		}
	}
	if len(bars) == 0 {
		return nil, nil, ErrMissingSeries
	}
	return bars, rows, nil
}
