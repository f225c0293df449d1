// Package action models the four vault verbs as one closed set of actions
// with a uniform Execute, and runs batches of them.
package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/glacier/internal/core"
)

// Verb is one of the supported vault operations.
type Verb string

const (
	VerbUpload    Verb = "upload"
	VerbDownload  Verb = "download"
	VerbDelete    Verb = "delete"
	VerbInventory Verb = "inventory"
)

// Verbs lists every verb.
var Verbs = []Verb{VerbUpload, VerbDownload, VerbDelete, VerbInventory}

// ParseVerb maps a name to its Verb, case-insensitively.
func ParseVerb(s string) (Verb, error) {
	name := Verb(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Verbs {
		if v == name {
			return v, nil
		}
	}
	return "", core.Errorf(core.ErrInvalidInput, "unknown action %q", s)
}

// Retrieval reports whether the verb runs a retrieval job.
func (v Verb) Retrieval() bool {
	return v == VerbDownload || v == VerbInventory
}

// Vault is the session surface actions run against.
type Vault interface {
	Upload(ctx context.Context, path string) (core.Archive, error)
	Delete(ctx context.Context, archiveID string) error
	Inventory(ctx context.Context, dest string) (string, error)
	Download(ctx context.Context, archiveID, dest string) (string, error)
}

// Result describes a completed action.
type Result struct {
	Verb      Verb
	Target    string
	ArchiveID string
	Location  string
	SizeBytes int64
	Checksum  string
	Duration  time.Duration
}

// Action is one vault operation.
type Action interface {
	Verb() Verb
	// Target is what the action operates on: a file path or an archive ID.
	Target() string
	Execute(ctx context.Context) (Result, error)
}

// Upload stores a local file as an archive.
type Upload struct {
	Vault Vault
	Path  string
}

func (a *Upload) Verb() Verb     { return VerbUpload }
func (a *Upload) Target() string { return a.Path }

func (a *Upload) Execute(ctx context.Context) (Result, error) {
	start := time.Now()
	archive, err := a.Vault.Upload(ctx, a.Path)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Verb:      VerbUpload,
		Target:    a.Path,
		ArchiveID: archive.ArchiveID,
		SizeBytes: archive.SizeBytes,
		Checksum:  archive.Checksum,
		Duration:  time.Since(start),
	}, nil
}

// Download retrieves an archive. An empty Destination picks the default.
type Download struct {
	Vault       Vault
	ArchiveID   string
	Destination string
}

func (a *Download) Verb() Verb     { return VerbDownload }
func (a *Download) Target() string { return a.ArchiveID }

func (a *Download) Execute(ctx context.Context) (Result, error) {
	start := time.Now()
	location, err := a.Vault.Download(ctx, a.ArchiveID, a.Destination)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Verb:      VerbDownload,
		Target:    a.ArchiveID,
		ArchiveID: a.ArchiveID,
		Location:  location,
		Duration:  time.Since(start),
	}, nil
}

// Delete removes an archive.
type Delete struct {
	Vault     Vault
	ArchiveID string
}

func (a *Delete) Verb() Verb     { return VerbDelete }
func (a *Delete) Target() string { return a.ArchiveID }

func (a *Delete) Execute(ctx context.Context) (Result, error) {
	start := time.Now()
	if err := a.Vault.Delete(ctx, a.ArchiveID); err != nil {
		return Result{}, err
	}
	return Result{
		Verb:      VerbDelete,
		Target:    a.ArchiveID,
		ArchiveID: a.ArchiveID,
		Duration:  time.Since(start),
	}, nil
}

// Inventory retrieves the vault inventory. An empty Destination picks the
// default.
type Inventory struct {
	Vault       Vault
	VaultName   string
	Destination string
}

func (a *Inventory) Verb() Verb     { return VerbInventory }
func (a *Inventory) Target() string { return a.VaultName }

func (a *Inventory) Execute(ctx context.Context) (Result, error) {
	start := time.Now()
	location, err := a.Vault.Inventory(ctx, a.Destination)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Verb:     VerbInventory,
		Target:   a.VaultName,
		Location: location,
		Duration: time.Since(start),
	}, nil
}

// New builds the action for verb from positional arguments, as given on the
// command line after the vault name. Each argument of upload and delete is a
// separate action.
func New(verb Verb, vault Vault, vaultName string, args []string) ([]Action, error) {
	switch verb {
	case VerbUpload:
		if len(args) == 0 {
			return nil, core.Errorf(core.ErrInvalidInput, "upload needs at least one file")
		}
		out := make([]Action, len(args))
		for i, p := range args {
			out[i] = &Upload{Vault: vault, Path: p}
		}
		return out, nil
	case VerbDelete:
		if len(args) == 0 {
			return nil, core.Errorf(core.ErrInvalidInput, "delete needs at least one archive ID")
		}
		out := make([]Action, len(args))
		for i, id := range args {
			out[i] = &Delete{Vault: vault, ArchiveID: id}
		}
		return out, nil
	case VerbDownload:
		if len(args) < 1 || len(args) > 2 {
			return nil, core.Errorf(core.ErrInvalidInput, "download takes an archive ID and an optional destination")
		}
		a := &Download{Vault: vault, ArchiveID: args[0]}
		if len(args) == 2 {
			a.Destination = args[1]
		}
		return []Action{a}, nil
	case VerbInventory:
		if len(args) > 1 {
			return nil, core.Errorf(core.ErrInvalidInput, "inventory takes an optional destination")
		}
		a := &Inventory{Vault: vault, VaultName: vaultName}
		if len(args) == 1 {
			a.Destination = args[0]
		}
		return []Action{a}, nil
	}
	return nil, core.Errorf(core.ErrInvalidInput, "unknown action %q", verb)
}

func (r Result) String() string {
	switch r.Verb {
	case VerbUpload:
		return fmt.Sprintf("uploaded %s as %s", r.Target, r.ArchiveID)
	case VerbDelete:
		return fmt.Sprintf("deleted %s", r.ArchiveID)
	default:
		return fmt.Sprintf("%s %s written to %s", r.Verb, r.Target, r.Location)
	}
}
