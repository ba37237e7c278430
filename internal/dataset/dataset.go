// Package dataset moves whole process hierarchies in and out of a
// workspace as a single JSON document.
package dataset

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"processmap/internal/attr"
	"processmap/internal/engine"
)

//go:embed schema.json
var schemaJSON []byte

//go:embed demo.json
var demoJSON []byte

var ErrInvalidDocument = errors.New("invalid dataset document")

type Document struct {
	Processes []Process `json:"processes"`
}

type Process struct {
	ID           string       `json:"id,omitempty"`
	Name         string       `json:"name"`
	Seq          int          `json:"seq,omitempty"`
	DependsOn    *string      `json:"depends_on,omitempty"`
	SubProcesses []SubProcess `json:"sub_processes"`
}

type SubProcess struct {
	ID         string   `json:"id,omitempty"`
	Name       string   `json:"name"`
	Seq        int      `json:"seq,omitempty"`
	DependsOn  *string  `json:"depends_on,omitempty"`
	Attributes attr.Map `json:"attributes"`
}

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// Parse validates data against the dataset schema and decodes it.
// Attribute values may use the tagged or the legacy untagged shape.
func Parse(data []byte) (Document, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return Document{}, fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc, nil
}

// Demo returns the bundled example hierarchy.
func Demo() Document {
	doc, err := Parse(demoJSON)
	if err != nil {
		panic(fmt.Sprintf("bundled demo dataset: %v", err))
	}
	return doc
}

type ImportOptions struct {
	// Replace deletes every existing process title first.
	Replace bool
	ActorID string
}

type Summary struct {
	Processes    int `json:"processes"`
	SubProcesses int `json:"sub_processes"`
	Attributes   int `json:"attributes"`
}

// Import creates the document's hierarchy through the engine. Entities are
// created first and dependencies linked afterwards so a document may refer
// forward. Import stops at the first error; entities created before it
// remain.
func Import(ctx context.Context, eng engine.Engine, doc Document, opts ImportOptions) (Summary, error) {
	var sum Summary
	if opts.Replace {
		existing, err := eng.ListProcesses(ctx)
		if err != nil {
			return sum, err
		}
		for _, p := range existing {
			if err := eng.DeleteProcess(ctx, p.ID, opts.ActorID); err != nil {
				return sum, fmt.Errorf("replace %s: %w", p.ID, err)
			}
		}
		// let pending name prunes finish before names are registered again
		eng.Wait()
	}

	type link struct {
		id, dep string
		sub     bool
	}
	var links []link
	for _, p := range doc.Processes {
		created, err := eng.CreateProcess(ctx, engine.ProcessCreateOptions{
			ID:      p.ID,
			Name:    p.Name,
			Seq:     p.Seq,
			ActorID: opts.ActorID,
		})
		if err != nil {
			return sum, fmt.Errorf("process %q: %w", p.Name, err)
		}
		sum.Processes++
		if p.DependsOn != nil && *p.DependsOn != "" {
			links = append(links, link{id: created.ID, dep: *p.DependsOn})
		}
		for _, sp := range p.SubProcesses {
			createdSub, err := eng.CreateSubProcess(ctx, engine.SubProcessCreateOptions{
				ID:         sp.ID,
				ProcessID:  created.ID,
				Name:       sp.Name,
				Seq:        sp.Seq,
				Attributes: sp.Attributes,
				ActorID:    opts.ActorID,
			})
			if err != nil {
				return sum, fmt.Errorf("sub-process %q: %w", sp.Name, err)
			}
			sum.SubProcesses++
			sum.Attributes += sp.Attributes.Len()
			if sp.DependsOn != nil && *sp.DependsOn != "" {
				links = append(links, link{id: createdSub.ID, dep: *sp.DependsOn, sub: true})
			}
		}
	}
	for _, l := range links {
		dep := l.dep
		var err error
		if l.sub {
			_, err = eng.UpdateSubProcess(ctx, engine.SubProcessUpdateOptions{ID: l.id, DependsOn: &dep, ActorID: opts.ActorID})
		} else {
			_, err = eng.UpdateProcess(ctx, engine.ProcessUpdateOptions{ID: l.id, DependsOn: &dep, ActorID: opts.ActorID})
		}
		if err != nil {
			return sum, fmt.Errorf("link %s to %s: %w", l.id, l.dep, err)
		}
	}
	return sum, nil
}

// Export reads the whole hierarchy in display order.
func Export(ctx context.Context, eng engine.Engine) (Document, error) {
	procs, err := eng.ListProcesses(ctx)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Processes: make([]Process, 0, len(procs))}
	for _, p := range procs {
		subs, err := eng.ListSubProcesses(ctx, p.ID)
		if err != nil {
			return Document{}, err
		}
		out := Process{ID: p.ID, Name: p.Name, Seq: p.Seq, DependsOn: p.DependsOn, SubProcesses: make([]SubProcess, 0, len(subs))}
		for _, sp := range subs {
			out.SubProcesses = append(out.SubProcesses, SubProcess{
				ID:         sp.ID,
				Name:       sp.Name,
				Seq:        sp.Seq,
				DependsOn:  sp.DependsOn,
				Attributes: sp.Attributes,
			})
		}
		doc.Processes = append(doc.Processes, out)
	}
	return doc, nil
}
