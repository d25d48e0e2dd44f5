package gocd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// DiffFunc compares two cruise configuration trees and renders a
// human-readable diff. The dry-run save mode uses it to report what would
// change without posting anything.
type DiffFunc func(before, after *Element) string

// Configurator accumulates pipeline groups and writes them into the GoCD
// server configuration. Groups the configurator does not manage pass
// through unchanged.
type Configurator struct {
	client  *Client
	logger  *zerolog.Logger
	diff    DiffFunc
	groups  []*PipelineGroup
	removed []string
}

// ConfiguratorOption customizes a Configurator.
type ConfiguratorOption func(*Configurator)

// WithDiff sets the diff renderer used by dry-run saves.
func WithDiff(diff DiffFunc) ConfiguratorOption {
	return func(c *Configurator) {
		c.diff = diff
	}
}

// NewConfigurator creates a configurator backed by the given client.
func NewConfigurator(client *Client, logger *zerolog.Logger, opts ...ConfiguratorOption) *Configurator {
	configurator := &Configurator{
		client: client,
		logger: logger,
	}
	for _, opt := range opts {
		opt(configurator)
	}
	return configurator
}

// EnsurePipelineGroup returns the named managed group, creating it if
// needed. Saving replaces the server's copy of each managed group wholesale.
func (c *Configurator) EnsurePipelineGroup(name string) *PipelineGroup {
	for _, g := range c.groups {
		if g.Name == name {
			return g
		}
	}
	group := &PipelineGroup{Name: name}
	c.groups = append(c.groups, group)
	return group
}

// EnsureRemovalOfPipelineGroup marks the named group for deletion on save.
func (c *Configurator) EnsureRemovalOfPipelineGroup(name string) {
	for _, existing := range c.removed {
		if existing == name {
			return
		}
	}
	c.removed = append(c.removed, name)
}

// SaveOptions controls how Save applies the managed groups.
type SaveOptions struct {
	// DryRun fetches the configuration, computes the change, prints a
	// diff of the canonicalized before and after documents, and posts
	// nothing.
	DryRun bool

	// SnapshotDir, when set, writes config-before.xml and config-after.xml
	// into the directory alongside the normal post.
	SnapshotDir string
}

// Save fetches the current server configuration, splices the managed groups
// into it, and posts the result back. Unmanaged groups and every other part
// of the cruise document are preserved as fetched.
func (c *Configurator) Save(ctx context.Context, opts SaveOptions) error {
	config, err := c.client.FetchConfig(ctx)
	if err != nil {
		return err
	}

	before := config.Root.Clone()
	c.splice(config.Root)

	if opts.SnapshotDir != "" {
		if err := writeSnapshot(opts.SnapshotDir, "config-before.xml", before); err != nil {
			return err
		}
		if err := writeSnapshot(opts.SnapshotDir, "config-after.xml", config.Root); err != nil {
			return err
		}
		c.logger.Info().Str("dir", opts.SnapshotDir).Msg("wrote configuration snapshots")
	}

	if opts.DryRun {
		if c.diff == nil {
			return fmt.Errorf("dry run requested but no diff renderer is configured")
		}
		fmt.Println(c.diff(before, config.Root))
		return nil
	}

	return c.client.PostConfig(ctx, config)
}

// splice replaces each managed group in the cruise document, appending
// groups the server does not have yet and dropping groups marked for
// removal. New groups are inserted after the last existing <pipelines>
// element so the document stays schema-valid.
func (c *Configurator) splice(root *Element) {
	for _, name := range c.removed {
		if existing := findGroup(root, name); existing != nil {
			root.Remove(existing)
			c.logger.Info().Str("group", name).Msg("removed pipeline group")
		}
	}

	for _, group := range c.groups {
		rendered := group.GroupElement()
		if existing := findGroup(root, group.Name); existing != nil {
			replaceChild(root, existing, rendered)
			c.logger.Debug().Str("group", group.Name).Msg("replaced pipeline group")
			continue
		}
		insertGroup(root, rendered)
		c.logger.Debug().Str("group", group.Name).Msg("added pipeline group")
	}
}

func findGroup(root *Element, name string) *Element {
	for _, child := range root.FindAll("pipelines") {
		if child.Attr("group") == name {
			return child
		}
	}
	return nil
}

func replaceChild(parent, old, replacement *Element) {
	for i, c := range parent.Children {
		if c == old {
			parent.Children[i] = replacement
			return
		}
	}
}

func insertGroup(root *Element, group *Element) {
	last := -1
	for i, c := range root.Children {
		if c.Tag == "pipelines" {
			last = i
		}
	}
	if last == -1 {
		// No groups yet; cruise requires pipelines before templates,
		// environments, and agents.
		for i, c := range root.Children {
			switch c.Tag {
			case "templates", "environments", "agents":
				rest := append([]*Element{group}, root.Children[i:]...)
				root.Children = append(root.Children[:i:i], rest...)
				return
			}
		}
		root.Append(group)
		return
	}
	rest := append([]*Element{group}, root.Children[last+1:]...)
	root.Children = append(root.Children[:last+1:last+1], rest...)
}

func writeSnapshot(dir, name string, root *Element) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir %v: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %v: %w", path, err)
	}
	if err := root.WriteXML(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %v: %w", path, err)
	}
	return f.Close()
}
