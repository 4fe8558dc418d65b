package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"despesas/internal/core"
	"despesas/internal/log"
	ports "despesas/internal/sheets"
)

const defaultIndexTTL = 2 * time.Minute

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger

	// The id column is cached briefly so a burst of upserts reads it once.
	mu             sync.Mutex
	cachedIDs      [][]any
	cacheExpiresAt time.Time
	cacheTTL       time.Duration
	sheetID        *int64
}

// Ensure interface conformance
var _ ports.Mirror = (*Client)(nil)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	CredentialsJSON string
}

// LoadCredentials returns the service account JSON, preferring inline
// credentials over the file.
func LoadCredentials(cfg Config) ([]byte, error) {
	if inline := strings.TrimSpace(cfg.CredentialsJSON); inline != "" {
		return []byte(inline), nil
	}
	if cfg.CredentialsFile == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON)")
	}
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(cfg.SheetName) == "" {
		return nil, errors.New("missing GOOGLE_SHEET_NAME")
	}
	creds, err := LoadCredentials(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created",
		"spreadsheet", cfg.SpreadsheetID, "sheet", cfg.SheetName)

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		logger:        logger,
		cacheTTL:      defaultIndexTTL,
	}, nil
}

func (c *Client) idRange() string { return fmt.Sprintf("%s!A:A", c.sheetName) }

// idColumn returns the id column, from cache when fresh.
func (c *Client) idColumn(ctx context.Context) ([][]any, error) {
	c.mu.Lock()
	if c.cachedIDs != nil && time.Now().Before(c.cacheExpiresAt) {
		values := c.cachedIDs
		c.mu.Unlock()
		return values, nil
	}
	c.mu.Unlock()

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.idRange()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.idRange(), err)
	}
	c.mu.Lock()
	c.cachedIDs = resp.Values
	c.cacheExpiresAt = time.Now().Add(c.cacheTTL)
	c.mu.Unlock()
	return resp.Values, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.cachedIDs = nil
	c.cacheExpiresAt = time.Time{}
	c.mu.Unlock()
}

// Upsert implements ports.Mirror
func (c *Client) Upsert(ctx context.Context, e core.Expense) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if e.ID == "" {
		return "", errors.New("expense without id")
	}
	values, err := c.idColumn(ctx)
	if err != nil {
		return "", err
	}

	if len(values) == 0 {
		if err := c.writeHeader(ctx); err != nil {
			return "", err
		}
	}

	row := ports.FindRow(values, e.ID)
	if row == 0 {
		row = max(len(values), 1) + 1
	}
	rng := fmt.Sprintf("%s!A%d:G%d", c.sheetName, row, row)
	vr := &gsheet.ValueRange{Values: [][]any{ports.Row(e)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		c.invalidate()
		return "", fmt.Errorf("write %s: %w", rng, err)
	}

	c.remember(row, e.ID)
	c.logger.DebugContext(ctx, "row written", log.FieldExpenseID, e.ID, log.FieldSheetsRef, rng)
	return rng, nil
}

func (c *Client) writeHeader(ctx context.Context) error {
	header := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	rng := fmt.Sprintf("%s!A1:G1", c.sheetName)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng,
		&gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	c.remember(1, ports.Header[0])
	return nil
}

// remember records id at row in the cached column so the next upsert in
// the same burst sees it.
func (c *Client) remember(row int, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cachedIDs == nil && row != 1 {
		return
	}
	for len(c.cachedIDs) < row {
		c.cachedIDs = append(c.cachedIDs, []any{})
	}
	c.cachedIDs[row-1] = []any{id}
	if c.cacheExpiresAt.IsZero() {
		c.cacheExpiresAt = time.Now().Add(c.cacheTTL)
	}
}

// Delete implements ports.Mirror
func (c *Client) Delete(ctx context.Context, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	// Row numbers shift after a delete; never trust the cache here.
	c.invalidate()
	values, err := c.idColumn(ctx)
	if err != nil {
		return err
	}
	row := ports.FindRow(values, id)
	if row == 0 {
		return nil
	}
	sheetID, err := c.lookupSheetID(ctx)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(row - 1),
			EndIndex:   int64(row),
		}},
	}}}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	c.invalidate()
	if err != nil {
		return fmt.Errorf("delete row %d: %w", row, err)
	}
	c.logger.DebugContext(ctx, "row deleted", log.FieldExpenseID, id, "row", row)
	return nil
}

func (c *Client) lookupSheetID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	if c.sheetID != nil {
		id := *c.sheetID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	id, ok := sheetIDByTitle(ss.Sheets, c.sheetName)
	if !ok {
		return 0, fmt.Errorf("sheet %q not found in spreadsheet", c.sheetName)
	}
	c.mu.Lock()
	c.sheetID = &id
	c.mu.Unlock()
	return id, nil
}

func sheetIDByTitle(sheets []*gsheet.Sheet, title string) (int64, bool) {
	for _, s := range sheets {
		if s != nil && s.Properties != nil && strings.EqualFold(s.Properties.Title, title) {
			return s.Properties.SheetId, true
		}
	}
	return 0, false
}

// ListIDs implements ports.Mirror
func (c *Client) ListIDs(ctx context.Context) ([]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	c.invalidate()
	values, err := c.idColumn(ctx)
	if err != nil {
		return nil, err
	}
	return ports.IDs(values), nil
}
