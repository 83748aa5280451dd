package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/store"
)

// BackupSet returns the backup handler family. Relative and empty paths are
// resolved against the call's workspace, falling back to workspace.
func BackupSet(backups *store.BackupStore, workspace string, restrict bool) *Set {
	b := backupTools{store: backups, fs: fileAccess{workspace: workspace, restrict: restrict}}
	return NewSet("backup",
		Func{
			Def: def("create_backup", "Archive a directory (default: the workspace).", nil,
				schema.Param("path", schema.TypeString, "Directory to back up"),
				schema.Param("label", schema.TypeString, "Short description of the backup"),
			),
			Fn: b.create,
		},
		Func{
			Def: def("list_backups", "List existing backups.", nil),
			Fn:  b.list,
		},
		Func{
			Def: def("restore_backup", "Restore a backup, overwriting existing files.", []string{"id"},
				schema.Param("id", schema.TypeString, "Backup id"),
				schema.Param("path", schema.TypeString, "Destination directory (default: the original location)"),
			),
			Fn: b.restore,
		},
		Func{
			Def: def("delete_backup", "Delete a backup archive.", []string{"id"},
				schema.Param("id", schema.TypeString, "Backup id"),
			),
			Fn: b.delete,
		},
	)
}

type backupTools struct {
	store *store.BackupStore
	fs    fileAccess
}

func (b backupTools) create(ctx context.Context, args Args) (Output, error) {
	path := args.String("path")
	if path == "" {
		path = "."
	}
	source, err := b.fs.resolve(ctx, path)
	if err != nil {
		return Output{}, err
	}
	info, err := b.store.Create(source, args.String("label"))
	if err != nil {
		return Output{}, Failed(err)
	}
	return Output{
		Text:     fmt.Sprintf("Created backup %s of %s (%d files, %d bytes)", info.ID, info.Source, info.Files, info.Size),
		Metadata: map[string]any{"backupId": info.ID},
		Files:    []string{info.Archive},
	}, nil
}

func (b backupTools) list(_ context.Context, _ Args) (Output, error) {
	all, err := b.store.List()
	if err != nil {
		return Output{}, Failed(err)
	}
	if len(all) == 0 {
		return Text("No backups."), nil
	}
	lines := make([]string, 0, len(all))
	for _, info := range all {
		line := fmt.Sprintf("%s  %s  %s  %d files", info.ID, info.CreatedAt.Format(time.DateTime), info.Source, info.Files)
		if info.Label != "" {
			line += "  (" + info.Label + ")"
		}
		lines = append(lines, line)
	}
	return Text(strings.Join(lines, "\n")), nil
}

func (b backupTools) restore(ctx context.Context, args Args) (Output, error) {
	id, err := args.RequireString("id")
	if err != nil {
		return Output{}, err
	}
	if !b.exists(id) {
		return Output{}, NotFound("backup not found: %s", id)
	}
	dest := ""
	if p := args.String("path"); p != "" {
		if dest, err = b.fs.resolve(ctx, p); err != nil {
			return Output{}, err
		}
	}
	n, err := b.store.Restore(id, dest)
	if err != nil {
		return Output{}, Failed(err)
	}
	return Textf("Restored %d files from backup %s", n, id), nil
}

func (b backupTools) delete(_ context.Context, args Args) (Output, error) {
	id, err := args.RequireString("id")
	if err != nil {
		return Output{}, err
	}
	ok, err := b.store.Delete(id)
	if err != nil {
		return Output{}, Failed(err)
	}
	if !ok {
		return Output{}, NotFound("backup not found: %s", id)
	}
	return Textf("Deleted backup %s", id), nil
}

func (b backupTools) exists(id string) bool {
	all, err := b.store.List()
	if err != nil {
		return false
	}
	for _, info := range all {
		if info.ID == id {
			return true
		}
	}
	return false
}
