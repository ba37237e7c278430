package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"processmap/internal/config"
	"processmap/internal/domain"
	"processmap/internal/events"
	"processmap/internal/registry"
	"processmap/internal/repo"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidDependency = errors.New("invalid dependency")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
	Names  *registry.Registry
	Bus    *events.Bus
	Logger *zap.Logger
	Now    func() time.Time

	bg *sync.WaitGroup
}

func New(db *sql.DB, cfg *config.Config, bus *events.Bus, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Config: cfg,
		Names:  registry.New(r, logger.Named("registry")),
		Bus:    bus,
		Logger: logger,
		Now:    time.Now,
		bg:     &sync.WaitGroup{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) events() events.Writer {
	return events.Writer{Now: e.now}
}

func (e Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Wait blocks until background side effects started so far have finished.
func (e Engine) Wait() {
	if e.bg != nil {
		e.bg.Wait()
	}
}

// background runs fn in a tracked goroutine detached from the request
// context. Without a tracker fn runs inline.
func (e Engine) background(name string, fn func(ctx context.Context) error) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.log().Warn("background task failed", zap.String("task", name), zap.Error(err))
		}
	}
	if e.bg == nil {
		run()
		return
	}
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		run()
	}()
}

// pruneNames checks each name against the whole dataset in the background.
func (e Engine) pruneNames(names ...string) {
	if len(names) == 0 || e.Names == nil {
		return
	}
	e.background("prune attribute names", func(ctx context.Context) error {
		var errs []error
		for _, name := range names {
			if _, err := e.Names.PruneIfUnused(ctx, name); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// tx runs fn in a transaction and publishes the collected changes once it
// committed.
func (e Engine) tx(ctx context.Context, fn func(tx *sql.Tx, pub *publisher) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	pub := &publisher{}
	if err := fn(tx, pub); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, c := range pub.changes {
		e.Bus.Publish(c)
	}
	return nil
}

type publisher struct {
	changes []domain.Change
}

func (p *publisher) add(rec events.Record, subProcessID string) {
	p.changes = append(p.changes, domain.Change{
		EventID:      rec.ID,
		Type:         rec.Type,
		ProcessID:    rec.ProcessID,
		SubProcessID: subProcessID,
		EntityKind:   rec.EntityKind,
		EntityID:     rec.EntityID,
		ActorID:      rec.ActorID,
		TS:           rec.TS,
	})
}

// record appends an audit event and queues its change notification.
func (e Engine) record(ctx context.Context, tx *sql.Tx, pub *publisher, evtType, processID, subProcessID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	rec, err := e.events().Append(ctx, tx, evtType, processID, entityKind, entityID, actorID, payload)
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	pub.add(rec, subProcessID)
	return nil
}

func check(in any) error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
