package resultstore

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// DefaultSheetName is the worksheet the analyzer writes to.
const DefaultSheetName = "GDPR"

// SheetsStore keeps rows in one worksheet of a Google spreadsheet: a header
// line followed by one line per clause. Concurrent writers are last-wins.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	sheet         string
}

// NewSheetsStore authenticates with a service-account key file.
func NewSheetsStore(ctx context.Context, credentialsFile, spreadsheetID, sheet string) (*SheetsStore, error) {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("%w: sheets client: %w", ErrConnectivity, err)
	}
	return NewSheetsStoreWithService(svc, spreadsheetID, sheet), nil
}

// NewSheetsStoreWithService uses an existing client.
func NewSheetsStoreWithService(svc *sheets.Service, spreadsheetID, sheet string) *SheetsStore {
	if strings.TrimSpace(sheet) == "" {
		sheet = DefaultSheetName
	}
	return &SheetsStore{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}
}

func (s *SheetsStore) rng(a1 string) string {
	return s.sheet + "!" + a1
}

func (s *SheetsStore) NextID(ctx context.Context) (int, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, connectivity("sheets next id", err)
	}
	highest := 0
	for _, line := range resp.Values {
		if len(line) == 0 {
			continue
		}
		if id, ok := cellInt(line[0]); ok && id > highest {
			highest = id
		}
	}
	return highest + 1, nil
}

// Write clears the sheet and writes header plus rows for replace, or when the
// stored header belongs to another schema. Otherwise rows are appended.
func (s *SheetsStore) Write(ctx context.Context, schema Schema, rows []Row, mode WriteMode) error {
	prepared, err := Prepare(schema, rows)
	if err != nil {
		return err
	}
	values := make([][]interface{}, 0, len(prepared)+1)

	replace := mode == WriteReplace
	if !replace {
		resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("1:1")).Context(ctx).Do()
		if err != nil {
			return connectivity("sheets read header", err)
		}
		var header []interface{}
		if len(resp.Values) > 0 {
			header = resp.Values[0]
		}
		replace = !headerMatches(header, schema)
	}

	if replace {
		if _, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, s.sheet, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
			return connectivity("sheets clear", err)
		}
		values = append(values, toInterfaces(schema.Header))
		for _, r := range prepared {
			values = append(values, toInterfaces(r.Values()))
		}
		_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1"), &sheets.ValueRange{Values: values}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return connectivity("sheets update", err)
		}
		return nil
	}

	if len(prepared) == 0 {
		return nil
	}
	for _, r := range prepared {
		values = append(values, toInterfaces(r.Values()))
	}
	_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A1"), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return connectivity("sheets append", err)
	}
	return nil
}

func (s *SheetsStore) ReadAll(ctx context.Context) (Schema, []Row, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.sheet).Context(ctx).Do()
	if err != nil {
		return Schema{}, nil, connectivity("sheets read", err)
	}
	schema := ClauseSchema
	if len(resp.Values) > 0 && headerMatches(resp.Values[0], BatchSchema) {
		schema = BatchSchema
	}
	width := len(schema.Header) - 1
	var out []Row
	for _, line := range resp.Values {
		if len(line) == 0 {
			continue
		}
		id, ok := cellInt(line[0])
		if !ok {
			continue
		}
		cells := make([]string, width)
		for i := 0; i < width && i+1 < len(line); i++ {
			cells[i] = fmt.Sprint(line[i+1])
		}
		out = append(out, Row{ClauseID: id, Cells: cells})
	}
	// Appends never rewrite earlier lines, so a repeated id keeps its last line.
	out, err = Prepare(schema, out)
	if err != nil {
		return Schema{}, nil, err
	}
	return schema, out, nil
}

func headerMatches(header []interface{}, schema Schema) bool {
	if len(header) != len(schema.Header) {
		return false
	}
	for i, h := range schema.Header {
		if strings.TrimSpace(fmt.Sprint(header[i])) != h {
			return false
		}
	}
	return true
}

func cellInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

var _ Store = (*SheetsStore)(nil)
