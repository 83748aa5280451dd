package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/store"
)

// BookmarkSet returns the bookmark family.
func BookmarkSet(bookmarks *store.Collection[store.Bookmark]) *Set {
	return NewSet("bookmark",
		Func{
			Def: def("add_bookmark", "Bookmark a URL.", []string{"url"},
				schema.Param("url", schema.TypeString, "http(s) URL"),
				schema.Param("title", schema.TypeString, "Title to show"),
				schema.ArrayParam("tags", schema.TypeString, "Optional tags"),
			),
			Fn: func(_ context.Context, args Args) (Output, error) {
				u, err := args.RequireString("url")
				if err != nil {
					return Output{}, err
				}
				if err := validateURL(u); err != nil {
					return Output{}, InvalidArgs("invalid url: %v", err)
				}
				for _, b := range bookmarks.List() {
					if b.URL == u {
						return Textf("Already bookmarked (id: %s)", b.ID), nil
					}
				}
				rec := store.Bookmark{
					ID:        store.NewID(),
					URL:       u,
					Title:     args.String("title"),
					Tags:      args.Strings("tags"),
					CreatedAt: time.Now(),
				}
				if err := bookmarks.Put(rec); err != nil {
					return Output{}, Failed(err)
				}
				return Output{Text: "Bookmarked (id: " + rec.ID + ")", Metadata: map[string]any{"bookmarkId": rec.ID}}, nil
			},
		},
		Func{
			Def: def("list_bookmarks", "List bookmarks, optionally filtered by tag or text.", nil,
				schema.Param("tag", schema.TypeString, "Only bookmarks with this tag"),
				schema.Param("query", schema.TypeString, "Only bookmarks whose title or URL contains this text"),
			),
			Fn: func(_ context.Context, args Args) (Output, error) {
				tag := args.String("tag")
				query := strings.ToLower(args.String("query"))
				var lines []string
				for _, b := range bookmarks.List() {
					if tag != "" && !hasTag(b.Tags, tag) {
						continue
					}
					if query != "" && !strings.Contains(strings.ToLower(b.Title+" "+b.URL), query) {
						continue
					}
					line := fmt.Sprintf("[%s] %s", b.ID, b.URL)
					if b.Title != "" {
						line += "  " + b.Title
					}
					lines = append(lines, line)
				}
				if len(lines) == 0 {
					return Text("No bookmarks."), nil
				}
				return Text(strings.Join(lines, "\n")), nil
			},
		},
		Func{
			Def: def("delete_bookmark", "Delete a bookmark.", []string{"id"},
				schema.Param("id", schema.TypeString, "Bookmark id"),
			),
			Fn: func(_ context.Context, args Args) (Output, error) {
				id, err := args.RequireString("id")
				if err != nil {
					return Output{}, err
				}
				ok, err := bookmarks.Delete(id)
				if err != nil {
					return Output{}, Failed(err)
				}
				if !ok {
					return Output{}, NotFound("bookmark not found: %s", id)
				}
				return Textf("Deleted bookmark %s", id), nil
			},
		},
	)
}
