package hostsim

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/gristlabs/gristbridge/hostfuncs"
	"github.com/gristlabs/gristbridge/wireformat"
)

// Host holds the simulated document and widget state.
type Host struct {
	mu            sync.Mutex
	tables        map[string]entities.Table
	options       map[string]any
	settings      map[string]any
	subscriptions map[string][]string
	logs          []wireformat.LogMessageWire
	selectedTable string
	selectedRow   int64
	readyCalls    int

	logger    *slog.Logger
	registry  *hostfuncs.HandlerRegistry
	transport *Transport
}

var _ hostfuncs.PluginAPI = (*Host)(nil)

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger used for request logging and guest log records.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithTable adds a table to the document. The first table added becomes
// the selected one.
func WithTable(id string, table entities.Table) Option {
	return func(h *Host) {
		h.tables[id] = table.Clone()
		if h.selectedTable == "" {
			h.selectedTable = id
		}
	}
}

// New creates a Host and starts its event worker. Close must be called to
// stop it.
func New(opts ...Option) (*Host, error) {
	h := &Host{
		tables:        make(map[string]entities.Table),
		options:       make(map[string]any),
		subscriptions: make(map[string][]string),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	validator := wireformat.NewValidator()
	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(
			hostfuncs.PanicRecoveryMiddleware(),
			hostfuncs.LoggingMiddleware(h.logger),
			hostfuncs.SchemaValidationMiddleware(validator),
		),
		hostfuncs.WithBundle(hostfuncs.PluginAPIBundle(h)),
	)
	if err != nil {
		return nil, fmt.Errorf("hostsim: building registry: %w", err)
	}
	h.registry = registry
	h.transport = newTransport(registry, validator, h.logger)
	return h, nil
}

// Transport returns the loopback transport guests connect through.
func (h *Host) Transport() *Transport {
	return h.transport
}

// Registry returns the handler registry serving the plugin API.
func (h *Host) Registry() *hostfuncs.HandlerRegistry {
	return h.registry
}

// Flush waits for pending event deliveries.
func (h *Host) Flush(ctx context.Context) error {
	return h.transport.Flush(ctx)
}

// Close stops event delivery.
func (h *Host) Close() error {
	return h.transport.Close()
}

// SetSelectedTable switches the widget to another table and clears the row
// selection. onRecords subscribers are notified.
func (h *Host) SetSelectedTable(ctx context.Context, id string) error {
	h.mu.Lock()
	table, ok := h.tables[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("hostsim: unknown table %q", id)
	}
	h.selectedTable = id
	h.selectedRow = 0
	rows, _ := table.Rows()
	subs := h.subscribersLocked(entities.EventRecords)
	h.mu.Unlock()

	h.notify(ctx, subs, rowsArg(rows), nil)
	return nil
}

// SelectRecord moves the cursor to a row of the selected table. onRecord
// subscribers are notified.
func (h *Host) SelectRecord(ctx context.Context, rowID int64) error {
	h.mu.Lock()
	table := h.tables[h.selectedTable]
	i := table.RowIndex(rowID)
	if i < 0 {
		h.mu.Unlock()
		return fmt.Errorf("hostsim: row %d not in table %q", rowID, h.selectedTable)
	}
	h.selectedRow = rowID
	rec := table.Row(i)
	subs := h.subscribersLocked(entities.EventRecord)
	h.mu.Unlock()

	h.notify(ctx, subs, map[string]any(rec), nil)
	return nil
}

// ClearSelection removes the cursor without notifying anyone.
func (h *Host) ClearSelection() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selectedRow = 0
}

// PutTable replaces the data of a table. Subscribers are notified when it
// is the selected table.
func (h *Host) PutTable(ctx context.Context, id string, table entities.Table) {
	h.mu.Lock()
	h.tables[id] = table.Clone()
	if h.selectedTable == "" {
		h.selectedTable = id
	}
	h.mu.Unlock()
	h.tableChanged(ctx, id)
}

// Subscriptions returns how many times event was subscribed to.
func (h *Host) Subscriptions(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscriptions[event])
}

// Options returns a copy of the widget options.
func (h *Host) Options() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.options)
}

// ReadyCalls returns how many times the widget declared itself ready.
func (h *Host) ReadyCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readyCalls
}

// Settings returns the settings passed to the last ready call.
func (h *Host) Settings() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.settings)
}

// Logs returns the guest log records received so far.
func (h *Host) Logs() []wireformat.LogMessageWire {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.logs)
}

// Table returns a copy of a table's current data.
func (h *Host) Table(id string) (entities.Table, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tables[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

func (h *Host) Ready(_ context.Context, settings map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readyCalls++
	h.settings = maps.Clone(settings)
	return nil
}

func (h *Host) GetOption(_ context.Context, key string) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.options[key], nil
}

func (h *Host) SetOption(_ context.Context, key string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if value == nil {
		delete(h.options, key)
		return nil
	}
	h.options[key] = value
	return nil
}

func (h *Host) FetchSelectedTable(_ context.Context, opts entities.FetchOptions) (entities.Table, error) {
	if err := checkFormat(opts); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	table, ok := h.tables[h.selectedTable]
	if !ok {
		return nil, fmt.Errorf("no table selected")
	}
	return table.Clone(), nil
}

func (h *Host) FetchSelectedRecord(_ context.Context, rowID int64, opts entities.FetchOptions) (entities.Record, error) {
	if err := checkFormat(opts); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recordLocked(rowID)
}

func (h *Host) GetCurrentRecord(context.Context) (entities.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.selectedRow == 0 {
		return nil, nil
	}
	return h.recordLocked(h.selectedRow)
}

func (h *Host) GetTable(_ context.Context, tableID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tableID == "" {
		tableID = h.selectedTable
	}
	if _, ok := h.tables[tableID]; !ok {
		return "", fmt.Errorf("unknown table %q", tableID)
	}
	return tableID, nil
}

func (h *Host) Subscribe(_ context.Context, event, callbackID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscriptions[event] = append(h.subscriptions[event], callbackID)
	return nil
}

func (h *Host) LogMessage(ctx context.Context, msg wireformat.LogMessageWire) error {
	h.mu.Lock()
	h.logs = append(h.logs, msg)
	h.mu.Unlock()

	var level slog.Level
	if err := level.UnmarshalText([]byte(msg.Level)); err != nil {
		level = slog.LevelInfo
	}
	attrs := make([]any, 0, 2*len(msg.Attrs)+2)
	attrs = append(attrs, "request_id", msg.Context.RequestID)
	for _, a := range msg.Attrs {
		attrs = append(attrs, a.Key, a.Value)
	}
	h.logger.Log(ctx, level, "guest log: "+msg.Message, attrs...)
	return nil
}

func (h *Host) ApplyTableAction(ctx context.Context, tableID, action string, payload any) (any, error) {
	h.mu.Lock()
	table, ok := h.tables[tableID]
	if !ok {
		h.mu.Unlock()
		return nil, fmt.Errorf("unknown table %q", tableID)
	}
	table = table.Clone()

	var result any
	var err error
	switch action {
	case "create":
		result, err = createRows(table, payload)
	case "update":
		err = updateRows(table, payload, false)
	case "upsert":
		err = updateRows(table, payload, true)
	case "destroy":
		err = destroyRows(table, payload)
	default:
		err = fmt.Errorf("unsupported table action %q", action)
	}
	if err != nil {
		h.mu.Unlock()
		return nil, fmt.Errorf("%s %s: %w", tableID, action, err)
	}
	h.tables[tableID] = table
	if h.selectedTable == tableID && h.selectedRow != 0 && table.RowIndex(h.selectedRow) < 0 {
		h.selectedRow = 0
	}
	h.mu.Unlock()

	h.tableChanged(ctx, tableID)
	return result, nil
}

func (h *Host) tableChanged(ctx context.Context, id string) {
	h.mu.Lock()
	if id != h.selectedTable {
		h.mu.Unlock()
		return
	}
	table := h.tables[id]
	rows, _ := table.Rows()
	recordSubs := h.subscribersLocked(entities.EventRecords)
	var rec entities.Record
	var selectSubs []string
	if i := table.RowIndex(h.selectedRow); h.selectedRow != 0 && i >= 0 {
		rec = table.Row(i)
		selectSubs = h.subscribersLocked(entities.EventRecord)
	}
	h.mu.Unlock()

	h.notify(ctx, recordSubs, rowsArg(rows), nil)
	if rec != nil {
		h.notify(ctx, selectSubs, map[string]any(rec), nil)
	}
}

func (h *Host) notify(ctx context.Context, subs []string, args ...any) {
	for _, id := range subs {
		h.transport.emit(context.WithoutCancel(ctx), id, args)
	}
}

func (h *Host) subscribersLocked(event string) []string {
	return slices.Clone(h.subscriptions[event])
}

func (h *Host) recordLocked(rowID int64) (entities.Record, error) {
	table, ok := h.tables[h.selectedTable]
	if !ok {
		return nil, fmt.Errorf("no table selected")
	}
	i := table.RowIndex(rowID)
	if i < 0 {
		return nil, fmt.Errorf("row %d not found in %s", rowID, h.selectedTable)
	}
	return table.Row(i), nil
}

func checkFormat(opts entities.FetchOptions) error {
	switch strings.ToLower(opts.Format) {
	case "", "columns":
		return nil
	default:
		return fmt.Errorf("unsupported format %q", opts.Format)
	}
}

func rowsArg(rows []entities.Record) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any(r)
	}
	return out
}
