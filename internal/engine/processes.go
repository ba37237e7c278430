package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"processmap/internal/domain"
	"processmap/internal/editor"
	"processmap/internal/events"
	"processmap/internal/repo"
)

var (
	ErrEmptyName     = editor.ErrEmptyName
	ErrDuplicateName = editor.ErrDuplicateName
)

// ProcessID derives the id of a process title from its name: "PT_"
// followed by the upper-cased name with every character outside [A-Z0-9]
// replaced by an underscore.
func ProcessID(name string) string {
	var b strings.Builder
	b.WriteString("PT_")
	for _, r := range strings.ToUpper(strings.TrimSpace(name)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

type ProcessCreateOptions struct {
	ID        string
	Name      string `validate:"required,max=200"`
	Seq       int    `validate:"gte=0"`
	DependsOn string
	ActorID   string `validate:"required"`
}

func (e Engine) CreateProcess(ctx context.Context, opts ProcessCreateOptions) (domain.ProcessTitle, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Name == "" {
		return domain.ProcessTitle{}, ErrEmptyName
	}
	if err := check(opts); err != nil {
		return domain.ProcessTitle{}, err
	}
	id := opts.ID
	if id == "" {
		id = ProcessID(opts.Name)
	}
	if opts.Seq == 0 {
		opts.Seq = 1
	}
	now := e.stamp()
	p := domain.ProcessTitle{
		ID:        id,
		Name:      opts.Name,
		Seq:       opts.Seq,
		DependsOn: optionalString(opts.DependsOn),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := e.tx(ctx, func(tx *sql.Tx, pub *publisher) error {
		r := e.Repo.WithTx(tx)
		if _, err := r.GetProcessTitle(ctx, id); err == nil {
			return fmt.Errorf("%w: process %s", ErrDuplicateName, id)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := e.checkProcessDependency(ctx, r, id, p.DependsOn); err != nil {
			return err
		}
		if err := r.InsertProcessTitle(ctx, p); err != nil {
			return fmt.Errorf("insert process: %w", err)
		}
		return e.record(ctx, tx, pub, "process.created", p.ID, "", "process", p.ID, opts.ActorID, events.EventPayload{"name": p.Name, "seq": p.Seq})
	})
	if err != nil {
		return domain.ProcessTitle{}, err
	}
	return p, nil
}

func (e Engine) checkProcessDependency(ctx context.Context, r repo.Repo, id string, dep *string) error {
	if dep == nil {
		return nil
	}
	if *dep == id {
		return fmt.Errorf("%w: process %s cannot depend on itself", ErrInvalidDependency, id)
	}
	if _, err := r.GetProcessTitle(ctx, *dep); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: process %s does not exist", ErrInvalidDependency, *dep)
		}
		return err
	}
	return nil
}

func (e Engine) GetProcess(ctx context.Context, id string) (domain.ProcessTitle, error) {
	return e.Repo.GetProcessTitle(ctx, id)
}

func (e Engine) ListProcesses(ctx context.Context) ([]domain.ProcessTitle, error) {
	return e.Repo.ListProcessTitles(ctx)
}

// ProcessUpdateOptions changes only the fields that are set. An empty
// DependsOn clears the dependency.
type ProcessUpdateOptions struct {
	ID        string  `validate:"required"`
	Name      *string `validate:"omitnil,max=200"`
	Seq       *int    `validate:"omitnil,gte=1"`
	DependsOn *string
	ActorID   string `validate:"required"`
}

func (e Engine) UpdateProcess(ctx context.Context, opts ProcessUpdateOptions) (domain.ProcessTitle, error) {
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return domain.ProcessTitle{}, ErrEmptyName
		}
		opts.Name = &name
	}
	if err := check(opts); err != nil {
		return domain.ProcessTitle{}, err
	}
	var p domain.ProcessTitle
	err := e.tx(ctx, func(tx *sql.Tx, pub *publisher) error {
		r := e.Repo.WithTx(tx)
		var err error
		p, err = r.GetProcessTitle(ctx, opts.ID)
		if err != nil {
			return err
		}
		changed := events.EventPayload{}
		if opts.Name != nil && *opts.Name != p.Name {
			changed["old_name"], changed["name"] = p.Name, *opts.Name
			p.Name = *opts.Name
		}
		if opts.Seq != nil && *opts.Seq != p.Seq {
			changed["seq"] = *opts.Seq
			p.Seq = *opts.Seq
		}
		if opts.DependsOn != nil {
			dep := optionalString(*opts.DependsOn)
			if err := e.checkProcessDependency(ctx, r, p.ID, dep); err != nil {
				return err
			}
			if deref(dep) != deref(p.DependsOn) {
				changed["depends_on"] = deref(dep)
			}
			p.DependsOn = dep
		}
		if len(changed) == 0 {
			return nil
		}
		p.UpdatedAt = e.stamp()
		if err := r.UpdateProcessTitle(ctx, p); err != nil {
			return err
		}
		return e.record(ctx, tx, pub, "process.updated", p.ID, "", "process", p.ID, opts.ActorID, changed)
	})
	return p, err
}

// DeleteProcess removes a process title with all its sub-processes and
// their follow-ups. Attribute names that fell out of use are pruned in the
// background.
func (e Engine) DeleteProcess(ctx context.Context, id, actorID string) error {
	var names []string
	err := e.tx(ctx, func(tx *sql.Tx, pub *publisher) error {
		r := e.Repo.WithTx(tx)
		p, err := r.GetProcessTitle(ctx, id)
		if err != nil {
			return err
		}
		subs, err := r.ListSubProcesses(ctx, id)
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, sp := range subs {
			for _, k := range sp.Attributes.Keys() {
				if !seen[k] {
					seen[k] = true
					names = append(names, k)
				}
			}
			if _, err := r.DeleteFollowUpsForSubProcess(ctx, sp.ID, ""); err != nil {
				return fmt.Errorf("delete follow-ups of %s: %w", sp.ID, err)
			}
		}
		if err := r.DeleteProcessTitle(ctx, id); err != nil {
			return err
		}
		return e.record(ctx, tx, pub, "process.deleted", p.ID, "", "process", p.ID, actorID, events.EventPayload{
			"name":          p.Name,
			"sub_processes": len(subs),
		})
	})
	if err != nil {
		return err
	}
	e.pruneNames(names...)
	return nil
}
