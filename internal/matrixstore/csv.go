package matrixstore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/reconerrors"
)

// parseCSV reads path line by line, splitting each line on delimiter
// (after first folding any ';' to the configured delimiter so that both
// comma- and semicolon-separated sources are accepted regardless of the
// configured default, matching the original source's behavior of
// replacing ';' with ',' unconditionally before splitting). Blank lines
// and lines with no numeric fields are skipped. A ragged row count or a
// non-numeric token on a line that also has numeric fields is
// reconerrors.Malformed.
func parseCSV(path string, delimiter byte) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, reconerrors.New(reconerrors.NotFound, "matrixstore.parseCSV", err).WithPath(path)
		}
		return nil, reconerrors.New(reconerrors.Internal, "matrixstore.parseCSV", err).WithPath(path)
	}
	defer f.Close()

	var rows [][]float64
	cols := -1

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		line = strings.ReplaceAll(line, ";", string(delimiter))

		fields := strings.Split(line, string(delimiter))
		row := make([]float64, 0, len(fields))
		var badToken error
		for _, field := range fields {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				if badToken == nil {
					badToken = err
				}
				continue
			}
			row = append(row, val)
		}
		if len(row) == 0 {
			continue
		}
		if badToken != nil {
			return nil, reconerrors.New(reconerrors.Malformed, "matrixstore.parseCSV", badToken).WithPath(path)
		}
		if cols == -1 {
			cols = len(row)
		} else if len(row) != cols {
			return nil, reconerrors.New(reconerrors.Malformed, "matrixstore.parseCSV",
				fmt.Errorf("ragged row: expected %d fields, got %d", cols, len(row))).WithPath(path)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, reconerrors.New(reconerrors.Internal, "matrixstore.parseCSV", err).WithPath(path)
	}
	if len(rows) == 0 {
		return nil, reconerrors.New(reconerrors.Malformed, "matrixstore.parseCSV",
			fmt.Errorf("no numeric rows found")).WithPath(path)
	}

	data := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		data = append(data, row...)
	}

	return &Matrix{Data: data, Rows: len(rows), Cols: cols}, nil
}
