package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"processmap/internal/attr"
	"processmap/internal/domain"
	"processmap/internal/events"
	"processmap/internal/repo"
)

type SubProcessCreateOptions struct {
	ID         string
	ProcessID  string `validate:"required"`
	Name       string `validate:"required,max=200"`
	Seq        int    `validate:"gte=0"`
	DependsOn  string
	Attributes attr.Map
	ActorID    string `validate:"required"`
}

func (e Engine) CreateSubProcess(ctx context.Context, opts SubProcessCreateOptions) (domain.SubProcess, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Name == "" {
		return domain.SubProcess{}, ErrEmptyName
	}
	if err := check(opts); err != nil {
		return domain.SubProcess{}, err
	}
	if err := checkKeys(opts.Attributes); err != nil {
		return domain.SubProcess{}, err
	}
	if opts.ID == "" {
		opts.ID = "SP_" + uuid.NewString()
	}
	if opts.Seq == 0 {
		opts.Seq = 1
	}
	now := e.stamp()
	sp := domain.SubProcess{
		ID:         opts.ID,
		ProcessID:  opts.ProcessID,
		Name:       opts.Name,
		Seq:        opts.Seq,
		DependsOn:  optionalString(opts.DependsOn),
		Attributes: opts.Attributes.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := e.tx(ctx, func(tx *sql.Tx, pub *publisher) error {
		r := e.Repo.WithTx(tx)
		if _, err := r.GetProcessTitle(ctx, sp.ProcessID); err != nil {
			return err
		}
		if err := checkSubProcessDependency(ctx, r, sp.ProcessID, sp.ID, sp.DependsOn); err != nil {
			return err
		}
		if err := r.InsertSubProcess(ctx, sp); err != nil {
			return fmt.Errorf("insert sub-process: %w", err)
		}
		return e.record(ctx, tx, pub, "sub_process.created", sp.ProcessID, sp.ID, "sub_process", sp.ID, opts.ActorID, events.EventPayload{
			"name": sp.Name,
			"seq":  sp.Seq,
		})
	})
	if err != nil {
		return domain.SubProcess{}, err
	}
	e.registerAll(ctx, sp.Attributes)
	return sp, nil
}

// registerAll adds every attribute of m to the name catalog. Failures are
// logged only.
func (e Engine) registerAll(ctx context.Context, m attr.Map) {
	if e.Names == nil {
		return
	}
	for _, entry := range m.Entries() {
		if err := e.Names.Register(ctx, entry.Name, entry.Value.Kind); err != nil {
			e.log().Warn("register attribute name", zap.String("attribute", entry.Name), zap.Error(err))
		}
	}
}

// checkSubProcessDependency accepts only an existing sub-process of the
// same process title.
func checkSubProcessDependency(ctx context.Context, r repo.Repo, processID, id string, dep *string) error {
	if dep == nil {
		return nil
	}
	if *dep == id {
		return fmt.Errorf("%w: sub-process %s cannot depend on itself", ErrInvalidDependency, id)
	}
	other, err := r.GetSubProcess(ctx, *dep)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: sub-process %s does not exist", ErrInvalidDependency, *dep)
		}
		return err
	}
	if other.ProcessID != processID {
		return fmt.Errorf("%w: sub-process %s belongs to process %s", ErrInvalidDependency, *dep, other.ProcessID)
	}
	return nil
}

func (e Engine) GetSubProcess(ctx context.Context, id string) (domain.SubProcess, error) {
	return e.Repo.GetSubProcess(ctx, id)
}

// ListSubProcesses orders by sequence number, ties broken by name.
func (e Engine) ListSubProcesses(ctx context.Context, processID string) ([]domain.SubProcess, error) {
	if _, err := e.Repo.GetProcessTitle(ctx, processID); err != nil {
		return nil, err
	}
	return e.Repo.ListSubProcesses(ctx, processID)
}

type SubProcessUpdateOptions struct {
	ID        string  `validate:"required"`
	Name      *string `validate:"omitnil,max=200"`
	Seq       *int    `validate:"omitnil,gte=1"`
	DependsOn *string
	ActorID   string `validate:"required"`
}

func (e Engine) UpdateSubProcess(ctx context.Context, opts SubProcessUpdateOptions) (domain.SubProcess, error) {
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return domain.SubProcess{}, ErrEmptyName
		}
		opts.Name = &name
	}
	if err := check(opts); err != nil {
		return domain.SubProcess{}, err
	}
	var sp domain.SubProcess
	err := e.tx(ctx, func(tx *sql.Tx, pub *publisher) error {
		r := e.Repo.WithTx(tx)
		var err error
		sp, err = r.GetSubProcess(ctx, opts.ID)
		if err != nil {
			return err
		}
		changed := events.EventPayload{}
		if opts.Name != nil && *opts.Name != sp.Name {
			changed["old_name"], changed["name"] = sp.Name, *opts.Name
			sp.Name = *opts.Name
		}
		if opts.Seq != nil && *opts.Seq != sp.Seq {
			changed["seq"] = *opts.Seq
			sp.Seq = *opts.Seq
		}
		if opts.DependsOn != nil {
			dep := optionalString(*opts.DependsOn)
			if err := checkSubProcessDependency(ctx, r, sp.ProcessID, sp.ID, dep); err != nil {
				return err
			}
			if deref(dep) != deref(sp.DependsOn) {
				changed["depends_on"] = deref(dep)
			}
			sp.DependsOn = dep
		}
		if len(changed) == 0 {
			return nil
		}
		sp.UpdatedAt = e.stamp()
		if err := r.UpdateSubProcess(ctx, sp); err != nil {
			return err
		}
		return e.record(ctx, tx, pub, "sub_process.updated", sp.ProcessID, sp.ID, "sub_process", sp.ID, opts.ActorID, changed)
	})
	return sp, err
}

// DeleteSubProcess removes the sub-process and its follow-ups, then prunes
// its attribute names from the catalog in the background.
func (e Engine) DeleteSubProcess(ctx context.Context, id, actorID string) error {
	var names []string
	err := e.tx(ctx, func(tx *sql.Tx, pub *publisher) error {
		r := e.Repo.WithTx(tx)
		sp, err := r.GetSubProcess(ctx, id)
		if err != nil {
			return err
		}
		dropped, err := r.DeleteFollowUpsForSubProcess(ctx, id, "")
		if err != nil {
			return fmt.Errorf("delete follow-ups: %w", err)
		}
		if err := r.DeleteSubProcess(ctx, id); err != nil {
			return err
		}
		names = sp.Attributes.Keys()
		return e.record(ctx, tx, pub, "sub_process.deleted", sp.ProcessID, sp.ID, "sub_process", sp.ID, actorID, events.EventPayload{
			"name":       sp.Name,
			"follow_ups": dropped,
		})
	})
	if err != nil {
		return err
	}
	e.pruneNames(names...)
	return nil
}
