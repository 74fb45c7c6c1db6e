// Package gmp implements the subset of the Greenbone Management Protocol that
// openvas-reporter needs to drive a gvmd scan engine over its control socket:
// authentication, target and task management, task start and report retrieval.
//
// A Client is a session value. Authenticate stores the credentials once gvmd
// accepts them; every later operation opens its own connection, authenticates
// it, issues exactly one command and closes it again. A Client whose
// authentication failed is disabled and rejects every operation without
// touching the socket.
package gmp

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode"

	"github.com/anstrom/openvas-reporter/internal/errors"
	"github.com/anstrom/openvas-reporter/internal/logging"
)

// Stock gvmd object identifiers. They are the same on every default install
// but can be overridden per deployment through Config.
const (
	DefaultSocketPath     = "/run/gvmd/gvmd.sock"
	DefaultScanConfigID   = "2d3f051c-55ba-11e3-bf43-406186ea4fc5" // Host Discovery
	DefaultScannerID      = "08b69003-5fc2-4037-a479-93b440211c73" // OpenVAS Default
	DefaultPortListID     = "33d0cd82-57c6-11e1-8ed1-406186ea4fc5" // All IANA assigned TCP
	DefaultReportFormatID = "c402cc3e-b531-11e1-9163-406186ea4fc5" // PDF
	DefaultTimeout        = 5 * time.Minute

	// StatusDone is the scan_run_status of a finished report.
	StatusDone = "Done"
)

// Operation names, used in errors and logs.
const (
	opAuthenticate = "authenticate"
	opGetVersion   = "get_version"
	opGetTargets   = "get_targets"
	opCreateTarget = "create_target"
	opCreateTask   = "create_task"
	opStartTask    = "start_task"
	opGetReports   = "get_reports"
)

// ErrNotFound is wrapped when a lookup matches nothing.
var ErrNotFound = stderrors.New("not found")

// Config holds the engine endpoint and the deployment specific object IDs.
type Config struct {
	SocketPath     string        `yaml:"socket" json:"socket"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	ScanConfigID   string        `yaml:"scan_config_id" json:"scan_config_id"`
	ScannerID      string        `yaml:"scanner_id" json:"scanner_id"`
	PortListID     string        `yaml:"port_list_id" json:"port_list_id"`
	ReportFormatID string        `yaml:"report_format_id" json:"report_format_id"`
}

// DefaultConfig returns the configuration of a stock local gvmd.
func DefaultConfig() Config {
	return Config{
		SocketPath:     DefaultSocketPath,
		Timeout:        DefaultTimeout,
		ScanConfigID:   DefaultScanConfigID,
		ScannerID:      DefaultScannerID,
		PortListID:     DefaultPortListID,
		ReportFormatID: DefaultReportFormatID,
	}
}

// State is the authentication state of a Client.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateDisabled:
		return "disabled"
	default:
		return "unauthenticated"
	}
}

// DialFunc opens a connection to gvmd.
type DialFunc func(ctx context.Context) (net.Conn, error)

// UnixDialer returns a DialFunc for the unix socket at path.
func UnixDialer(path string) DialFunc {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", path)
	}
}

// StartResult is the outcome of starting a task.
type StartResult struct {
	StatusText string
	ReportID   string
}

// Client is an authenticated session with gvmd.
type Client struct {
	cfg    Config
	dial   DialFunc
	logger *logging.Logger

	state    State
	username string
	password string
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the unix socket dialer.
func WithDialer(dial DialFunc) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates an unauthenticated client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		dial:   UnixDialer(cfg.SocketPath),
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("gmp")
	return c
}

// State returns the current authentication state.
func (c *Client) State() State {
	return c.state
}

// Authenticate verifies the credentials with gvmd. On failure the client is
// disabled for the rest of its life.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	if c.state == StateDisabled {
		return errors.ErrAuthRequired(opAuthenticate)
	}

	cmd := authenticateCommand{Username: username, Password: password}
	if err := c.roundTrip(ctx, opAuthenticate, nil, cmd, &authenticateResponse{}); err != nil {
		c.state = StateDisabled
		c.username, c.password = "", ""
		return authError(err)
	}

	c.username, c.password = username, password
	c.state = StateAuthenticated
	c.logger.Debug("Authenticated with scan engine", "user", username)
	return nil
}

// Version returns the GMP version reported by gvmd.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp getVersionResponse
	if err := c.exchange(ctx, opGetVersion, getVersionCommand{}, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// FindTargetIDByName returns the ID of the first target matching name. It
// wraps ErrNotFound when gvmd returns no target.
func (c *Client) FindTargetIDByName(ctx context.Context, name string) (string, error) {
	var resp getTargetsResponse
	cmd := getTargetsCommand{Filter: nameFilter(name)}
	if err := c.exchange(ctx, opGetTargets, cmd, &resp); err != nil {
		return "", err
	}

	for _, target := range resp.Targets {
		if target.ID != "" {
			return target.ID, nil
		}
	}
	return "", fmt.Errorf("target %q: %w", name, ErrNotFound)
}

// CreateTarget registers a target over hosts bound to the configured port
// list. It does not check for an existing target of the same name.
func (c *Client) CreateTarget(ctx context.Context, name string, hosts []string) (string, error) {
	cmd := createTargetCommand{
		Name:     name,
		Hosts:    strings.Join(hosts, ","),
		PortList: idRef{ID: c.cfg.PortListID},
	}
	return c.create(ctx, opCreateTarget, cmd)
}

// CreateTask creates a task for targetID with the configured scan config and scanner.
func (c *Client) CreateTask(ctx context.Context, name, targetID string) (string, error) {
	cmd := createTaskCommand{
		Name:    name,
		Config:  idRef{ID: c.cfg.ScanConfigID},
		Target:  idRef{ID: targetID},
		Scanner: idRef{ID: c.cfg.ScannerID},
	}
	return c.create(ctx, opCreateTask, cmd)
}

func (c *Client) create(ctx context.Context, op string, cmd any) (string, error) {
	var resp createResponse
	if err := c.exchange(ctx, op, cmd, &resp); err != nil {
		return "", err
	}
	if resp.XMLName.Local != op+"_response" {
		return "", errors.ErrMalformedResponse(op, op+"_response").WithContext("element", resp.XMLName.Local)
	}
	if resp.ID == "" {
		return "", errors.ErrMalformedResponse(op, "id")
	}
	return resp.ID, nil
}

// StartTask starts taskID. The result's ReportID is empty when gvmd did not
// return one; use ExtractReportID to treat that as an error.
func (c *Client) StartTask(ctx context.Context, taskID string) (*StartResult, error) {
	var resp startTaskResponse
	if err := c.exchange(ctx, opStartTask, startTaskCommand{TaskID: taskID}, &resp); err != nil {
		return nil, err
	}
	return &StartResult{
		StatusText: resp.StatusText,
		ReportID:   strings.TrimSpace(resp.ReportID),
	}, nil
}

// ExtractReportID returns the report ID of a start result.
func ExtractReportID(result *StartResult) (string, error) {
	if result == nil || result.ReportID == "" {
		err := errors.ErrMalformedResponse(opStartTask, "report_id")
		err.Cause = ErrNotFound
		return "", err
	}
	return result.ReportID, nil
}

// ReportStatus returns the scan_run_status text of a report exactly as gvmd
// sends it.
func (c *Client) ReportStatus(ctx context.Context, reportID string) (string, error) {
	var resp getReportsResponse
	cmd := getReportsCommand{ReportID: reportID, Details: "0"}
	if err := c.exchange(ctx, opGetReports, cmd, &resp); err != nil {
		return "", err
	}
	if len(resp.Reports) == 0 || resp.Reports[0].Report == nil {
		return "", errors.ErrMalformedResponse(opGetReports, "scan_run_status")
	}
	return resp.Reports[0].Report.ScanRunStatus, nil
}

// IsReportFinished reports whether the report's status is exactly "Done".
// Errors are logged and count as not finished; callers that need to tell the
// two apart use ReportStatus.
func (c *Client) IsReportFinished(ctx context.Context, reportID string) bool {
	status, err := c.ReportStatus(ctx, reportID)
	if err != nil {
		c.logger.Warn("Failed to check report status", "report_id", reportID, "error", err)
		return false
	}
	return status == StatusDone
}

// ExportReport renders the report in the configured report format (PDF by
// default) and returns the decoded document.
func (c *Client) ExportReport(ctx context.Context, reportID string) ([]byte, error) {
	var resp getReportsResponse
	cmd := getReportsCommand{ReportID: reportID, FormatID: c.cfg.ReportFormatID, Details: "1"}
	if err := c.exchange(ctx, opGetReports, cmd, &resp); err != nil {
		return nil, err
	}
	if len(resp.Reports) == 0 || resp.Reports[0].ReportFormat == nil {
		return nil, errors.ErrMalformedResponse(opGetReports, "report_format")
	}

	encoded := stripSpace(resp.Reports[0].Payload)
	if encoded == "" {
		return nil, errors.ErrMalformedResponse(opGetReports, "report content")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.WrapEngineError(errors.CodeMalformedResponse, opGetReports, "report content is not valid base64", err)
	}
	return data, nil
}

// exchange runs an authenticated command.
func (c *Client) exchange(ctx context.Context, op string, cmd any, resp response) error {
	if c.state != StateAuthenticated {
		return errors.ErrAuthRequired(op)
	}
	auth := &authenticateCommand{Username: c.username, Password: c.password}
	return c.roundTrip(ctx, op, auth, cmd, resp)
}

// roundTrip dials gvmd, optionally authenticates the connection, sends cmd
// and decodes one response element into resp.
func (c *Client) roundTrip(ctx context.Context, op string, auth *authenticateCommand, cmd any, resp response) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return errors.WrapEngineError(errors.CodeEngine, op, "failed to connect to scan engine", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.logger.Debug("Failed to close engine connection", "error", err)
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()
	if c.cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	}

	enc := xml.NewEncoder(conn)
	dec := xml.NewDecoder(conn)

	if auth != nil {
		if err := c.send(ctx, enc, dec, opAuthenticate, auth, &authenticateResponse{}); err != nil {
			return authError(err)
		}
	}

	c.logger.Debug("Sending engine command", "operation", op)
	return c.send(ctx, enc, dec, op, cmd, resp)
}

func (c *Client) send(ctx context.Context, enc *xml.Encoder, dec *xml.Decoder, op string, cmd any, resp response) error {
	if err := enc.Encode(cmd); err != nil {
		return ioError(ctx, op, "failed to send command", err)
	}
	if err := dec.Decode(resp); err != nil {
		return ioError(ctx, op, "failed to read response", err)
	}

	st := resp.status()
	if !st.ok() {
		engineErr := errors.NewEngineError(errors.CodeEngine, op, "command rejected")
		engineErr.Status = st.Status
		engineErr.StatusText = st.StatusText
		return engineErr
	}
	return nil
}

func ioError(ctx context.Context, op, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		code := errors.CodeCanceled
		if stderrors.Is(ctxErr, context.DeadlineExceeded) {
			code = errors.CodeTimeout
		}
		return errors.WrapEngineError(code, op, msg, ctxErr)
	}
	var syntaxErr *xml.SyntaxError
	if stderrors.As(err, &syntaxErr) {
		return errors.WrapEngineError(errors.CodeMalformedResponse, op, msg, err)
	}
	var unmarshalErr xml.UnmarshalError
	if stderrors.As(err, &unmarshalErr) {
		return errors.WrapEngineError(errors.CodeMalformedResponse, op, msg, err)
	}
	return errors.WrapEngineError(errors.CodeEngine, op, msg, err)
}

func authError(err error) error {
	var engineErr *errors.EngineError
	if stderrors.As(err, &engineErr) && (engineErr.Code == errors.CodeCanceled || engineErr.Code == errors.CodeTimeout) {
		return err
	}
	return errors.WrapEngineError(errors.CodeAuthFailed, opAuthenticate, "authentication failed", err)
}

// nameFilter builds a GMP filter matching name exactly.
func nameFilter(name string) string {
	return `name="` + strings.ReplaceAll(name, `"`, "") + `"`
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
