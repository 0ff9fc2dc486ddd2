package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/contactsync/internal/clock"
	"github.com/iudanet/contactsync/internal/models"
)

const (
	// DefaultMaxChanges лимит клиентских изменений в одном запросе
	DefaultMaxChanges = 5000
	// DefaultMaxResolveAttempts сколько раз перечитывать запись после ErrStale
	DefaultMaxResolveAttempts = 3
)

// Request запрос синхронизации.
type Request struct {
	Checkpoint time.Time                    // lastSync клиента; zero value означает полную выборку
	Changes    map[string][]json.RawMessage // коллекция -> сырые клиентские изменения
}

// Change запись, измененная на сервере после checkpoint.
type Change struct {
	Record Record
	Entity string
}

// Conflict отчет о клиентском изменении, отклоненном из-за более новой серверной версии.
type Conflict struct {
	ClientUpdated *time.Time
	ServerUpdated time.Time
	Entity        string
	ID            uuid.UUID
}

// RecordError клиентское изменение, которое не удалось разобрать или провалидировать.
type RecordError struct {
	ID      *uuid.UUID // id, если его удалось извлечь
	Entity  string
	Message string
	Index   int // позиция изменения в массиве коллекции
}

// Response результат синхронизации.
type Response struct {
	ServerTime    time.Time
	ServerChanges []Change
	Conflicts     []Conflict
	Errors        []RecordError
	Inserted      int // статистика для журнала и метрик
	Accepted      int
}

// Coordinator выполняет одну синхронизацию: pull, push, commit.
// Coordinator не хранит состояния между вызовами.
type Coordinator struct {
	store       Store
	registry    *Registry
	clock       clock.Clock
	journal     Journal
	recorder    Recorder
	logger      *slog.Logger
	resolver    Resolver
	maxChanges  int
	maxAttempts int
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithResolver задает резолвер (политику timestamp).
func WithResolver(r Resolver) Option {
	return func(c *Coordinator) { c.resolver = r }
}

// WithJournal включает журнал синхронизаций.
func WithJournal(j Journal) Option {
	return func(c *Coordinator) { c.journal = j }
}

// WithRecorder включает сбор метрик.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithMaxChanges задает лимит изменений в запросе. 0 отключает лимит.
func WithMaxChanges(n int) Option {
	return func(c *Coordinator) { c.maxChanges = n }
}

// WithMaxResolveAttempts задает число попыток разрешения при конкурентной записи.
func WithMaxResolveAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// NewCoordinator создает координатор. Реестр запечатывается:
// набор типов сущностей фиксируется на время жизни процесса.
func NewCoordinator(store Store, registry *Registry, clk clock.Clock, logger *slog.Logger, opts ...Option) *Coordinator {
	registry.Seal()

	c := &Coordinator{
		store:       store,
		registry:    registry,
		clock:       clk,
		logger:      logger,
		resolver:    NewResolver(StampClient),
		maxChanges:  DefaultMaxChanges,
		maxAttempts: DefaultMaxResolveAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute выполняет синхронизацию для principal.
//
// Все изменения фиксируются атомарно. Если Execute вернул ошибку, на сервере
// ничего не изменилось, и клиент может повторить запрос с тем же checkpoint.
func (c *Coordinator) Execute(ctx context.Context, principal string, req Request) (*Response, error) {
	start := time.Now()

	resp, err := c.execute(ctx, req)
	c.observe(ctx, start, resp, err)
	if err != nil {
		return nil, err
	}

	c.audit(ctx, principal, models.Normalize(req.Checkpoint), resp)
	return resp, nil
}

func (c *Coordinator) execute(ctx context.Context, req Request) (*Response, error) {
	if err := c.checkLimits(req); err != nil {
		return nil, err
	}

	checkpoint := models.Normalize(req.Checkpoint)

	s, err := c.store.Begin(ctx)
	if err != nil {
		return nil, c.fail(ctx, "begin session", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := s.Rollback(); rbErr != nil {
			c.logger.ErrorContext(ctx, "failed to rollback sync session", slog.Any("error", rbErr))
		}
	}()

	resp := &Response{
		ServerChanges: []Change{},
		Conflicts:     []Conflict{},
		Errors:        []RecordError{},
	}

	handlers := c.registry.handlers()

	// Pull выполняется до push: собственные вставки клиента не возвращаются ему в этом же ответе
	for _, h := range handlers {
		changes, err := h.pull(ctx, s, checkpoint)
		if err != nil {
			return nil, c.fail(ctx, "pull "+h.name(), err)
		}
		resp.ServerChanges = append(resp.ServerChanges, changes...)
	}

	env := &pushEnv{
		resolver:    c.resolver,
		clock:       c.clock,
		logger:      c.logger,
		maxAttempts: c.maxAttempts,
	}
	for _, h := range handlers {
		raws := req.Changes[h.collection()]
		if len(raws) == 0 {
			continue
		}
		if err := h.push(ctx, env, s, raws, resp); err != nil {
			return nil, c.fail(ctx, "push "+h.name(), err)
		}
	}

	// После этой точки отмена запроса уже не прерывает синхронизацию
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// serverTime берется один раз, после всех изменений, и строго больше любого серверного stamp этого вызова
	resp.ServerTime = c.clock.Now()

	if err := s.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", ErrStore, err)
	}
	committed = true

	return resp, nil
}

func (c *Coordinator) checkLimits(req Request) error {
	if c.maxChanges <= 0 {
		return nil
	}
	total := 0
	for _, raws := range req.Changes {
		total += len(raws)
	}
	if total > c.maxChanges {
		return fmt.Errorf("%w: %d > %d", ErrTooManyChanges, total, c.maxChanges)
	}
	return nil
}

// fail приводит ошибку хранилища к ErrStore, сохраняя отмену контекста как есть.
func (c *Coordinator) fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, ErrStore) {
		return err
	}
	return storeError(op, err)
}

func (c *Coordinator) observe(ctx context.Context, start time.Time, resp *Response, err error) {
	if c.recorder == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = OutcomeCanceled
	case errors.Is(err, ErrTooManyChanges), errors.Is(err, ErrInvalidRequest):
		outcome = OutcomeRejected
	default:
		outcome = OutcomeStoreFail
		c.logger.ErrorContext(ctx, "sync failed", slog.Any("error", err))
	}
	c.recorder.ObserveSync(outcome, time.Since(start), resp)
}

// audit пишет журнал синхронизаций после commit. Ошибки только логируются.
func (c *Coordinator) audit(ctx context.Context, principal string, checkpoint time.Time, resp *Response) {
	c.logger.InfoContext(ctx, "sync completed",
		"user_id", principal,
		"checkpoint", checkpoint,
		"server_time", resp.ServerTime,
		"pulled", len(resp.ServerChanges),
		"inserted", resp.Inserted,
		"accepted", resp.Accepted,
		"conflicts", len(resp.Conflicts),
		"errors", len(resp.Errors),
	)

	if c.journal == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	last, found, err := c.journal.LastServerTime(ctx, principal)
	switch {
	case err != nil:
		c.logger.WarnContext(ctx, "failed to read sync log", "user_id", principal, slog.Any("error", err))
	case found && checkpoint.After(last):
		// клиент прислал checkpoint, который сервер ему не выдавал: возможен пропуск изменений
		c.logger.WarnContext(ctx, "client checkpoint is ahead of last issued server time",
			"user_id", principal,
			"checkpoint", checkpoint,
			"last_server_time", last,
		)
	}

	entry := &models.SyncLogEntry{
		UserID:        principal,
		Checkpoint:    checkpoint,
		ServerTime:    resp.ServerTime,
		PulledCount:   len(resp.ServerChanges),
		AppliedCount:  resp.Inserted + resp.Accepted,
		ConflictCount: len(resp.Conflicts),
		ErrorCount:    len(resp.Errors),
	}
	if err := c.journal.AppendSyncLog(ctx, entry); err != nil {
		c.logger.WarnContext(ctx, "failed to append sync log", "user_id", principal, slog.Any("error", err))
	}
}

// pushEnv зависимости push-фазы, общие для всех типов.
type pushEnv struct {
	clock       clock.Clock
	logger      *slog.Logger
	resolver    Resolver
	maxAttempts int
}

// entry типизированная реализация kindHandler.
type entry[R Record] struct {
	kind Kind[R]
}

func (e *entry[R]) name() string       { return e.kind.Name }
func (e *entry[R]) collection() string { return e.kind.Collection }

func (e *entry[R]) pull(ctx context.Context, s Session, since time.Time) ([]Change, error) {
	records, err := e.kind.Adapter.ChangedSince(ctx, s, since)
	if err != nil {
		return nil, err
	}
	changes := make([]Change, 0, len(records))
	for _, rec := range records {
		changes = append(changes, Change{Entity: e.kind.Name, Record: rec})
	}
	return changes, nil
}

func (e *entry[R]) push(ctx context.Context, env *pushEnv, s Session, raws []json.RawMessage, out *Response) error {
	for i, raw := range raws {
		if err := ctx.Err(); err != nil {
			return err
		}

		change, err := e.kind.Decode(raw)
		if err != nil {
			// Некорректная запись не прерывает обработку остальных
			out.Errors = append(out.Errors, RecordError{
				Entity:  e.kind.Name,
				Index:   i,
				ID:      probeID(raw),
				Message: err.Error(),
			})
			env.logger.DebugContext(ctx, "skipping invalid change",
				"entity", e.kind.Name,
				"index", i,
				slog.Any("error", err),
			)
			continue
		}

		if err := e.apply(ctx, env, s, change, out); err != nil {
			return err
		}
	}
	return nil
}

// apply разрешает и применяет одно изменение. При ErrStale запись перечитывается
// и решение принимается заново.
func (e *entry[R]) apply(ctx context.Context, env *pushEnv, s Session, change ClientChange[R], out *Response) error {
	incoming := change.Record.Meta()

	for attempt := 1; ; attempt++ {
		var (
			current  R
			observed Observed
		)
		if incoming.ID != uuid.Nil {
			rec, err := e.kind.Adapter.Find(ctx, s, incoming.ID)
			switch {
			case err == nil:
				current = rec
				observed = Observed{Exists: true, UpdatedAt: rec.Meta().UpdatedAt}
			case errors.Is(err, ErrNotFound):
			default:
				return fmt.Errorf("find %s %s: %w", e.kind.Name, incoming.ID, err)
			}
		}

		meta := ChangeMeta{ID: incoming.ID, UpdatedAt: change.UpdatedAt}
		if observed.Exists && e.kind.Equal != nil {
			meta.Unchanged = e.kind.Equal(current, change.Record)
		}

		now := env.clock.Now()
		decision := env.resolver.Resolve(observed, meta, now)

		var err error
		switch decision.Verdict {
		case VerdictConflict:
			out.Conflicts = append(out.Conflicts, Conflict{
				Entity:        e.kind.Name,
				ID:            incoming.ID,
				ServerUpdated: observed.UpdatedAt,
				ClientUpdated: change.UpdatedAt,
			})
			return nil

		case VerdictInsert:
			if decision.AssignID {
				incoming.ID = uuid.New()
			}
			incoming.CreatedAt = now
			incoming.UpdatedAt = decision.Stamp
			err = e.kind.Adapter.Upsert(ctx, s, change.Record, nil)
			if err == nil {
				out.Inserted++
				return nil
			}

		case VerdictAccept:
			if decision.Skip {
				out.Accepted++
				return nil
			}
			merged := e.kind.Merge(current, change.Record)
			merged.Meta().UpdatedAt = decision.Stamp
			err = e.kind.Adapter.Upsert(ctx, s, merged, &observed.UpdatedAt)
			if err == nil {
				out.Accepted++
				return nil
			}
		}

		if !errors.Is(err, ErrStale) {
			return fmt.Errorf("upsert %s %s: %w", e.kind.Name, incoming.ID, err)
		}
		if attempt >= env.maxAttempts {
			return fmt.Errorf("upsert %s %s after %d attempts: %w", e.kind.Name, incoming.ID, attempt, err)
		}
		env.logger.DebugContext(ctx, "record changed concurrently, resolving again",
			"entity", e.kind.Name,
			"id", incoming.ID,
			"attempt", attempt,
		)
	}
}

// probeID пытается извлечь id из некорректной записи для отчета об ошибке.
func probeID(raw json.RawMessage) *uuid.UUID {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.ID == "" {
		return nil
	}
	id, err := uuid.Parse(probe.ID)
	if err != nil {
		return nil
	}
	return &id
}
