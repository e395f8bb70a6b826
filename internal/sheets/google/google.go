package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"boleta/internal/core"
	ports "boleta/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Boletas"

// header is written to row 1 of an empty sheet.
var header = []any{"ID", "Empleado", "Periodo", "Versión", "Modo aporte", "Ingresos", "Deducciones", "Aportes", "Neto a pagar", "Exportado"}

// Client exports payslip summaries to a Google spreadsheet, one row per
// payslip keyed by the payslip id in column A.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	now           func() time.Time

	// The id column is cached between exports of one batch; every write
	// updates the cached copy so row lookups stay consistent.
	mu                 sync.Mutex
	cachedIDs          []string
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var (
	_ ports.PayslipExporter = (*Client)(nil)
	_ ports.PayslipRemover  = (*Client)(nil)
	_ ports.ExportLister    = (*Client)(nil)
)

// NewFromEnv creates a Sheets client from the environment.
// Required: GOOGLE_SPREADSHEET_ID and service account credentials.
// Optional: GOOGLE_SHEET_NAME (default "Boletas").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME")), nil
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetName:          sheetName,
		now:                time.Now,
		cacheValidDuration: 30 * time.Second,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS,
// falling back to an OAuth client plus the token saved by "boletactl sheets-auth".
func newSheetsService(ctx context.Context, opts ...goption.ClientOption) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	if serviceAccountJSON == "" && serviceAccountFile == "" {
		ts, ok, err := oauthTokenSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("oauth credentials: %w", err)
		}
		if ok {
			slog.InfoContext(ctx, "Creating Google Sheets service with OAuth token",
				"token_file", TokenFile())
			opts = append([]goption.ClientOption{goption.WithTokenSource(ts)}, opts...)
			return gsheet.NewService(ctx, opts...)
		}
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_OAUTH_CLIENT_FILE)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	opts = append([]goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, opts...)
	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportPayslip writes the payslip summary row, replacing the existing row for
// the same id. It returns the A1 range written.
func (c *Client) ExportPayslip(ctx context.Context, p *core.Payslip, totals core.FormattedTotals) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if p == nil || p.ID == "" {
		return "", core.ErrEmptyPayslipID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.readIDs(ctx)
	if err != nil {
		return "", err
	}

	if len(ids) == 0 {
		rng := fmt.Sprintf("%s!A1:J1", c.sheetName)
		if err := c.update(ctx, rng, [][]any{header}); err != nil {
			c.invalidate()
			return "", fmt.Errorf("write header: %w", err)
		}
		ids = []string{"ID"}
	}

	row := findRow(ids, p.ID)
	if row == 0 {
		row = len(ids) + 1
	}

	rng := fmt.Sprintf("%s!A%d:J%d", c.sheetName, row, row)
	if err := c.update(ctx, rng, [][]any{summaryRow(p, totals, c.now())}); err != nil {
		c.invalidate()
		return "", fmt.Errorf("update %s: %w", rng, err)
	}
	if row > len(ids) {
		ids = append(ids, p.ID)
	}
	c.remember(ids)

	slog.InfoContext(ctx, "Payslip exported to Google Sheets",
		"payslip_id", p.ID,
		"version", p.Version,
		"range", rng)
	return rng, nil
}

// DeletePayslip clears the summary row of id. Missing rows are not an error.
func (c *Client) DeletePayslip(ctx context.Context, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}
	row := findRow(ids, id)
	if row == 0 {
		return nil
	}
	rng := fmt.Sprintf("%s!A%d:J%d", c.sheetName, row, row)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		c.invalidate()
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	ids[row-1] = ""
	c.remember(ids)
	slog.InfoContext(ctx, "Payslip removed from Google Sheets", "payslip_id", id, "range", rng)
	return nil
}

// ListExported reads back every exported summary row.
func (c *Client) ListExported(ctx context.Context) ([]core.PayslipSummary, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:J", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseSummaries(resp.Values)
}

// readIDs returns the id column, from cache when fresh. c.mu must be held.
func (c *Client) readIDs(ctx context.Context) ([]string, error) {
	if c.cachedIDs != nil && c.now().Before(c.cacheExpiresAt) {
		return append([]string(nil), c.cachedIDs...), nil
	}
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	ids := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) > 0 {
			ids[i] = strings.TrimSpace(fmt.Sprint(row[0]))
		}
	}
	c.remember(ids)
	return append([]string(nil), ids...), nil
}

func (c *Client) remember(ids []string) {
	c.cachedIDs = append([]string(nil), ids...)
	c.cacheExpiresAt = c.now().Add(c.cacheValidDuration)
}

func (c *Client) invalidate() {
	c.cachedIDs = nil
	c.cacheExpiresAt = time.Time{}
}

func (c *Client) update(ctx context.Context, rng string, values [][]any) error {
	vr := &gsheet.ValueRange{Values: values}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// findRow returns the 1-based row holding id, or 0.
func findRow(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i + 1
		}
	}
	return 0
}

func summaryRow(p *core.Payslip, totals core.FormattedTotals, at time.Time) []any {
	return []any{
		p.ID,
		p.Employee,
		p.Period.String(),
		p.Version,
		string(p.Rule.Mode.Normalize()),
		totals.Income,
		totals.Deductions,
		totals.EmployerContributions,
		totals.NetPayable,
		at.UTC().Format(time.RFC3339),
	}
}
