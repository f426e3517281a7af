/*
Package spreadsheet talks to Google Sheets on behalf of the report and export
paths.

PURPOSE:
  Everything that decides WHAT to write lives in report/. This package only
  knows WHERE: resolving sheets by title, A1 ranges, the 5-column per-user
  export sheet, and the request builders shared by every layout.

SERVICE:
  Service is the narrow surface consumed from the Sheets API:

    GetSpreadsheet   -> list sheet titles/ids
    BatchUpdate      -> structural and formatting requests
    Append/Update/Get/ClearValues -> values.* calls

  GoogleService is the production adapter (service-account JWT scoped to
  spreadsheets). spreadsheettest.Fake is an in-memory grid for tests.

SEE ALSO:
  - resolve.go:   Resolve (find-or-create, optional clear)
  - usersheet.go: per-user export sheet
  - format.go:    request builders
  - a1.go:        A1 notation helpers
*/
package spreadsheet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ValueInputOption is used for every value write. Cells are stored as sent:
// strings stay text and are never parsed into formulas or dates, so numeric
// cells must be written as numbers.
const ValueInputOption = "RAW"

// Service is the subset of the Sheets API the tracker consumes.
type Service interface {
	GetSpreadsheet(ctx context.Context, spreadsheetID string) (*sheets.Spreadsheet, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, requests []*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error)
	AppendValues(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) error
	UpdateValues(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) error
	GetValues(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
	ClearValues(ctx context.Context, spreadsheetID, rng string) error
}

// =============================================================================
// GOOGLE ADAPTER
// =============================================================================

// Credentials identify the service account. Either File (a JSON key) or
// Email + PrivateKey must be set.
type Credentials struct {
	Email      string
	PrivateKey string
	File       string
}

// GoogleService implements Service on top of sheets/v4.
type GoogleService struct {
	srv *sheets.Service
}

var _ Service = (*GoogleService)(nil)

// NewGoogleService builds an authenticated client. The returned service is
// stateless and safe for concurrent runs.
func NewGoogleService(ctx context.Context, creds Credentials) (*GoogleService, error) {
	conf, err := jwtConfig(creds)
	if err != nil {
		return nil, err
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &GoogleService{srv: srv}, nil
}

func jwtConfig(creds Credentials) (*jwt.Config, error) {
	if creds.File != "" {
		data, err := os.ReadFile(creds.File)
		if err != nil {
			return nil, fmt.Errorf("read service account key: %w", err)
		}
		conf, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account key: %w", err)
		}
		return conf, nil
	}
	if creds.Email == "" || creds.PrivateKey == "" {
		return nil, errors.New("sheets credentials: service account email and private key are required")
	}
	return &jwt.Config{
		Email: creds.Email,
		// Keys passed through env vars usually carry escaped newlines.
		PrivateKey: []byte(strings.ReplaceAll(creds.PrivateKey, `\n`, "\n")),
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   google.JWTTokenURL,
	}, nil
}

func (g *GoogleService) GetSpreadsheet(ctx context.Context, spreadsheetID string) (*sheets.Spreadsheet, error) {
	return g.srv.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
}

func (g *GoogleService) BatchUpdate(ctx context.Context, spreadsheetID string, requests []*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	if len(requests) == 0 {
		return &sheets.BatchUpdateSpreadsheetResponse{SpreadsheetId: spreadsheetID}, nil
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}
	return g.srv.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
}

func (g *GoogleService) AppendValues(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) error {
	_, err := g.srv.Spreadsheets.Values.Append(spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption(ValueInputOption).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	return err
}

func (g *GoogleService) UpdateValues(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) error {
	_, err := g.srv.Spreadsheets.Values.Update(spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption(ValueInputOption).
		Context(ctx).Do()
	return err
}

func (g *GoogleService) GetValues(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := g.srv.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (g *GoogleService) ClearValues(ctx context.Context, spreadsheetID, rng string) error {
	_, err := g.srv.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// Disabled is the Service used when no service account is configured. Every
// call is refused like a spreadsheet that was never shared, so linking fails
// with not_authorized and exports are logged and skipped.
type Disabled struct{}

var _ Service = Disabled{}

var errDisabled = &googleapi.Error{Code: http.StatusForbidden, Message: "google sheets credentials are not configured"}

func (Disabled) GetSpreadsheet(context.Context, string) (*sheets.Spreadsheet, error) {
	return nil, errDisabled
}

func (Disabled) BatchUpdate(context.Context, string, []*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	return nil, errDisabled
}

func (Disabled) AppendValues(context.Context, string, string, [][]interface{}) error { return errDisabled }
func (Disabled) UpdateValues(context.Context, string, string, [][]interface{}) error { return errDisabled }
func (Disabled) ClearValues(context.Context, string, string) error                   { return errDisabled }

func (Disabled) GetValues(context.Context, string, string) ([][]interface{}, error) {
	return nil, errDisabled
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsAccessDenied reports whether the API refused access to the spreadsheet
// (unauthenticated, not shared with the service account, or unknown id).
func IsAccessDenied(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// IsRateLimited reports a quota rejection. The task queue retries these.
func IsRateLimited(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests
}
