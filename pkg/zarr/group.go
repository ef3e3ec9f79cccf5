package zarr

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/storage"
)

// NodeType is the node_type of a zarr.json document.
type NodeType string

const (
	NodeArray NodeType = "array"
	NodeGroup NodeType = "group"
)

// Node is the raw metadata of an array or group.
type Node struct {
	Path     string
	Type     NodeType
	Metadata json.RawMessage
}

// OpenNode reads zarr.json at path and reports whether it describes an array or a group.
func OpenNode(ctx context.Context, store storage.Store, path string) (*Node, error) {
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}
	raw, err := store.Get(ctx, nodeKey(path, MetadataKey))
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			for _, v2 := range []string{".zarray", ".zgroup"} {
				if _, err := store.Get(ctx, nodeKey(path, v2)); err == nil {
					return nil, errors.New(errors.ErrCodeUnsupported, "node at %s is a Zarr V2 node; only Zarr V3 is supported", path)
				}
			}
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "no zarr node at %s", path)
		}
		return nil, err
	}
	var head struct {
		ZarrFormat int      `json:"zarr_format"`
		NodeType   NodeType `json:"node_type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidMetadata, err, "parse metadata of %s", path)
	}
	if head.ZarrFormat != 3 {
		return nil, errors.New(errors.ErrCodeUnsupported, "unsupported zarr_format %d", head.ZarrFormat)
	}
	if head.NodeType != NodeArray && head.NodeType != NodeGroup {
		return nil, errors.New(errors.ErrCodeInvalidMetadata, "unknown node_type %q", head.NodeType)
	}
	return &Node{Path: path, Type: head.NodeType, Metadata: raw}, nil
}

// Group is a Zarr V3 group.
type Group struct {
	store storage.Store
	path  string
	meta  GroupMetadata
}

// NewGroup creates a group bound to store and path without writing it.
func NewGroup(store storage.Store, path string, attrs map[string]any) (*Group, error) {
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}
	return &Group{
		store: store,
		path:  path,
		meta:  GroupMetadata{ZarrFormat: 3, NodeType: string(NodeGroup), Attributes: attrs},
	}, nil
}

// OpenGroup reads the group at path.
func OpenGroup(ctx context.Context, store storage.Store, path string) (*Group, error) {
	node, err := OpenNode(ctx, store, path)
	if err != nil {
		return nil, err
	}
	if node.Type != NodeGroup {
		return nil, errors.New(errors.ErrCodeInvalidMetadata, "node at %s is an array, not a group", path)
	}
	var meta GroupMetadata
	if err := json.Unmarshal(node.Metadata, &meta); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidMetadata, err, "parse group metadata of %s", path)
	}
	return &Group{store: store, path: path, meta: meta}, nil
}

// Path returns the node path of the group.
func (g *Group) Path() string { return g.path }

// Metadata returns the group metadata.
func (g *Group) Metadata() GroupMetadata { return g.meta }

// Attributes returns the group attributes.
func (g *Group) Attributes() map[string]any { return g.meta.Attributes }

// SetAttributes replaces the group attributes.
func (g *Group) SetAttributes(attrs map[string]any) { g.meta.Attributes = attrs }

// StoreMetadata writes zarr.json.
func (g *Group) StoreMetadata(ctx context.Context) error {
	b, err := MarshalIndent(g.meta)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode group metadata")
	}
	return g.store.Set(ctx, nodeKey(g.path, MetadataKey), b)
}
