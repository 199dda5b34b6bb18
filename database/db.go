package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/tradedrill/iteration"
	"github.com/dnldd/tradedrill/session"
	"github.com/dnldd/tradedrill/shared"
	"github.com/dnldd/tradedrill/slicer"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// SQL statements.
	createSessionTableSQL   = "CREATE TABLE IF NOT EXISTS session (id TEXT PRIMARY KEY, mode TEXT, symbol TEXT, tickerkind TEXT, timeframe TEXT, barsnumber INTEGER, timelimit INTEGER, iterations INTEGER, slippage TEXT, fixingbar INTEGER, status TEXT, createdon INTEGER)"
	createIterationTableSQL = "CREATE TABLE IF NOT EXISTS iteration (id TEXT PRIMARY KEY, sessionid TEXT, number INTEGER, startidx INTEGER, endidx INTEGER, startdate INTEGER, finishdate INTEGER, startprice TEXT, finishprice TEXT, fixprice TEXT, UNIQUE(sessionid, number))"
	createDecisionTableSQL  = "CREATE TABLE IF NOT EXISTS decision (id TEXT PRIMARY KEY, sessionid TEXT, iterationnum INTEGER, action TEXT, timespent INTEGER, createdon INTEGER, UNIQUE(sessionid, iterationnum))"
	persistSessionSQL       = "INSERT INTO session(id, mode, symbol, tickerkind, timeframe, barsnumber, timelimit, iterations, slippage, fixingbar, status, createdon) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)"
	findSessionSQL          = "SELECT id, mode, symbol, tickerkind, timeframe, barsnumber, timelimit, iterations, slippage, fixingbar, status, createdon FROM session WHERE id = ?"
	updateSessionStatusSQL  = "UPDATE session SET status = ? WHERE id = ?"
	persistIterationSQL     = "INSERT INTO iteration(id, sessionid, number, startidx, endidx, startdate, finishdate, startprice, finishprice, fixprice) VALUES(?,?,?,?,?,?,?,?,?,?)"
	findIterationsSQL       = "SELECT id, sessionid, number, startidx, endidx, startdate, finishdate, startprice, finishprice, fixprice FROM iteration WHERE sessionid = ? ORDER BY number"
	persistDecisionSQL      = "INSERT INTO decision(id, sessionid, iterationnum, action, timespent, createdon) VALUES(?,?,?,?,?,?)"
	findDecisionsSQL        = "SELECT id, sessionid, iterationnum, action, timespent, createdon FROM decision WHERE sessionid = ? ORDER BY iterationnum"
)

// SessionStorer defines the requirements for storing sessions, their iterations and decisions.
type SessionStorer interface {
	// PersistSession stores the provided session along with its iterations. Either both are
	// stored or neither is.
	PersistSession(ctx context.Context, sess *session.Session, iterations []*iteration.Iteration) error
	// FetchSession returns the stored session with the provided id.
	FetchSession(ctx context.Context, sessionID string) (*session.Session, error)
	// UpdateSessionStatus stores the current status of the provided session.
	UpdateSessionStatus(ctx context.Context, sess *session.Session) error
	// FetchIterations returns the stored iterations of the provided session.
	FetchIterations(ctx context.Context, sessionID string) ([]IterationRecord, error)
	// PersistDecision stores the provided decision.
	PersistDecision(ctx context.Context, decision *session.Decision) error
	// FetchDecisions returns the stored decisions of the provided session, ordered by iteration.
	FetchDecisions(ctx context.Context, sessionID string) ([]session.Decision, error)
}

// IterationRecord represents a stored iteration. Quotes are not stored, the interval
// locates the iteration within the session's quotes.
type IterationRecord struct {
	ID          string
	SessionID   string
	Number      int
	Interval    slicer.Interval
	StartDate   time.Time
	FinishDate  time.Time
	StartPrice  decimal.Decimal
	FinishPrice decimal.Decimal
	FixPrice    decimal.Decimal
}

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("database endpoint cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Database represents the database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
}

// Ensure the database implements the SessionStorer interface.
var _ SessionStorer = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// execute runs the provided statements in a single transaction.
func (db *Database) execute(ctx context.Context, stmts rqlitehttp.SQLStatements) error {
	resp, err := db.client.Execute(ctx, stmts, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("statement %d: %s", idx, errStr)
	}

	return nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	return db.execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createSessionTableSQL},
		{SQL: createIterationTableSQL},
		{SQL: createDecisionTableSQL},
	})
}

// query runs the provided statement and returns its associative rows.
func (db *Database) query(ctx context.Context, sql string, params ...any) ([]map[string]any, error) {
	resp, err := db.client.Query(ctx, rqlitehttp.SQLStatements{
		{SQL: sql, PositionalParams: params},
	}, &rqlitehttp.QueryOptions{Associative: true})
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for _, result := range resp.GetQueryResultsAssoc() {
		if result.Error != "" {
			return nil, errors.New(result.Error)
		}

		rows = append(rows, result.Rows...)
	}

	return rows, nil
}

// sessionParams returns the positional parameters persisting the provided session.
func sessionParams(sess *session.Session) []any {
	opts := sess.Options
	return []any{sess.ID, sess.Mode.String(), sess.Ticker.Symbol, sess.Ticker.Kind.String(),
		opts.Timeframe.String(), opts.BarsNumber, int64(opts.TimeLimit.Seconds()), opts.Iterations,
		opts.Slippage.String(), opts.FixingBar, sess.Status.String(), sess.CreatedOn.Unix()}
}

// iterationParams returns the positional parameters persisting the provided iteration.
func iterationParams(iter *iteration.Iteration) []any {
	return []any{iter.ID, iter.SessionID, iter.Number, iter.Interval.Start, iter.Interval.End,
		iter.StartDate.Unix(), iter.FinishDate.Unix(), iter.StartPrice.String(),
		iter.FinishPrice.String(), iter.FixPrice.String()}
}

// decisionParams returns the positional parameters persisting the provided decision.
func decisionParams(decision *session.Decision) []any {
	return []any{decision.ID, decision.SessionID, decision.IterationNumber, decision.Action.String(),
		decision.TimeSpent.Milliseconds(), decision.CreatedOn.Unix()}
}

// PersistSession stores the provided session and its iterations in a single transaction.
func (db *Database) PersistSession(ctx context.Context, sess *session.Session, iterations []*iteration.Iteration) error {
	stmts := make(rqlitehttp.SQLStatements, 0, len(iterations)+1)
	stmts = append(stmts, &rqlitehttp.SQLStatement{
		SQL:              persistSessionSQL,
		PositionalParams: sessionParams(sess),
	})
	for _, iter := range iterations {
		stmts = append(stmts, &rqlitehttp.SQLStatement{
			SQL:              persistIterationSQL,
			PositionalParams: iterationParams(iter),
		})
	}

	err := db.execute(ctx, stmts)
	if err != nil {
		return fmt.Errorf("persisting session %s: %w", sess.ID, err)
	}

	return nil
}

// FetchSession returns the stored session with the provided id.
func (db *Database) FetchSession(ctx context.Context, sessionID string) (*session.Session, error) {
	rows, err := db.query(ctx, findSessionSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying session %s: %w", sessionID, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}

	sess, err := parseSessionRow(rows[0])
	if err != nil {
		db.cfg.Logger.Error().Msgf("unexpected session row: %s", spew.Sdump(rows[0]))
		return nil, err
	}

	return sess, nil
}

// UpdateSessionStatus stores the current status of the provided session.
func (db *Database) UpdateSessionStatus(ctx context.Context, sess *session.Session) error {
	err := db.execute(ctx, rqlitehttp.SQLStatements{
		{SQL: updateSessionStatusSQL, PositionalParams: []any{sess.Status.String(), sess.ID}},
	})
	if err != nil {
		return fmt.Errorf("updating session %s status: %w", sess.ID, err)
	}

	return nil
}

// PersistDecision stores the provided decision. The decision table rejects a second
// decision for the same iteration.
func (db *Database) PersistDecision(ctx context.Context, decision *session.Decision) error {
	err := db.execute(ctx, rqlitehttp.SQLStatements{
		{SQL: persistDecisionSQL, PositionalParams: decisionParams(decision)},
	})
	if err != nil {
		return fmt.Errorf("persisting decision %d for session %s: %w", decision.IterationNumber,
			decision.SessionID, err)
	}

	return nil
}

// FetchDecisions returns the stored decisions of the provided session, ordered by iteration.
func (db *Database) FetchDecisions(ctx context.Context, sessionID string) ([]session.Decision, error) {
	rows, err := db.query(ctx, findDecisionsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying decisions for session %s: %w", sessionID, err)
	}

	decisions := make([]session.Decision, 0, len(rows))
	for _, row := range rows {
		decision, err := parseDecisionRow(row)
		if err != nil {
			db.cfg.Logger.Error().Msgf("unexpected decision row: %s", spew.Sdump(row))
			return nil, err
		}

		decisions = append(decisions, decision)
	}

	return decisions, nil
}

// FetchIterations returns the stored iterations of the provided session, ordered by number.
func (db *Database) FetchIterations(ctx context.Context, sessionID string) ([]IterationRecord, error) {
	rows, err := db.query(ctx, findIterationsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying iterations for session %s: %w", sessionID, err)
	}

	var records []IterationRecord
	for _, row := range rows {
		record, err := parseIterationRow(row)
		if err != nil {
			db.cfg.Logger.Error().Msgf("unexpected iteration row: %s", spew.Sdump(row))
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

// rowReader reads typed columns from an associative query row, collecting every
// malformed column.
type rowReader struct {
	row  map[string]any
	errs error
}

func (r *rowReader) text(key string) string {
	v, ok := r.row[key].(string)
	if !ok {
		r.errs = errors.Join(r.errs, fmt.Errorf("column %s is not text", key))
	}
	return v
}

// integer reads a numeric column. JSON numbers decode as float64.
func (r *rowReader) integer(key string) int64 {
	v, ok := r.row[key].(float64)
	if !ok {
		r.errs = errors.Join(r.errs, fmt.Errorf("column %s is not numeric", key))
	}
	return int64(v)
}

func (r *rowReader) price(key string) decimal.Decimal {
	v, err := decimal.NewFromString(r.text(key))
	if err != nil {
		r.errs = errors.Join(r.errs, fmt.Errorf("column %s: %w", key, err))
	}
	return v
}

// join records a parse error of the provided column.
func (r *rowReader) join(key string, err error) {
	if err != nil {
		r.errs = errors.Join(r.errs, fmt.Errorf("column %s: %w", key, err))
	}
}

// parseSessionRow parses a stored session from an associative query row.
func parseSessionRow(row map[string]any) (*session.Session, error) {
	r := &rowReader{row: row}

	mode, err := shared.ParseMode(r.text("mode"))
	r.join("mode", err)
	kind, err := shared.ParseTickerKind(r.text("tickerkind"))
	r.join("tickerkind", err)
	timeframe, err := shared.ParseTimeframe(r.text("timeframe"))
	r.join("timeframe", err)
	status, err := shared.ParseStatus(r.text("status"))
	r.join("status", err)

	sess := &session.Session{
		ID:     r.text("id"),
		Mode:   mode,
		Ticker: shared.Ticker{Kind: kind, Symbol: r.text("symbol")},
		Options: shared.Options{
			Timeframe:  timeframe,
			BarsNumber: int(r.integer("barsnumber")),
			TimeLimit:  time.Duration(r.integer("timelimit")) * time.Second,
			Iterations: int(r.integer("iterations")),
			Slippage:   r.price("slippage"),
			FixingBar:  int(r.integer("fixingbar")),
		},
		Status:    status,
		CreatedOn: time.Unix(r.integer("createdon"), 0),
	}

	if r.errs != nil {
		return nil, fmt.Errorf("parsing session row: %w", r.errs)
	}

	return sess, nil
}

// parseDecisionRow parses a stored decision from an associative query row.
func parseDecisionRow(row map[string]any) (session.Decision, error) {
	r := &rowReader{row: row}

	action, err := shared.ParseDecisionAction(r.text("action"))
	r.join("action", err)

	decision := session.Decision{
		ID:              r.text("id"),
		SessionID:       r.text("sessionid"),
		IterationNumber: int(r.integer("iterationnum")),
		Action:          action,
		TimeSpent:       time.Duration(r.integer("timespent")) * time.Millisecond,
		CreatedOn:       time.Unix(r.integer("createdon"), 0),
	}

	if r.errs != nil {
		return session.Decision{}, fmt.Errorf("parsing decision row: %w", r.errs)
	}

	return decision, nil
}

// parseIterationRow parses a stored iteration from an associative query row.
func parseIterationRow(row map[string]any) (IterationRecord, error) {
	r := &rowReader{row: row}

	record := IterationRecord{
		ID:        r.text("id"),
		SessionID: r.text("sessionid"),
		Number:    int(r.integer("number")),
		Interval: slicer.Interval{
			Start: int(r.integer("startidx")),
			End:   int(r.integer("endidx")),
		},
		StartDate:   time.Unix(r.integer("startdate"), 0),
		FinishDate:  time.Unix(r.integer("finishdate"), 0),
		StartPrice:  r.price("startprice"),
		FinishPrice: r.price("finishprice"),
		FixPrice:    r.price("fixprice"),
	}

	if r.errs != nil {
		return IterationRecord{}, fmt.Errorf("parsing iteration row: %w", r.errs)
	}

	return record, nil
}
