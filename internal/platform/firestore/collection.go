package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection gives typed access to one collection whose documents decode into D.
type Collection[D any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a document type to a collection name.
func NewCollection[D any](provider *Provider, name string) *Collection[D] {
	return &Collection[D]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection name.
func (c *Collection[D]) Name() string { return c.name }

// Ref returns the collection reference.
func (c *Collection[D]) Ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError("collection", errors.New("firestore: provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError("collection", errors.New("firestore: collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

// Doc returns the reference for id.
func (c *Collection[D]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("doc"), errors.New("firestore: document id is required"))
	}
	ref, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	return ref.Doc(id), nil
}

// Get reads and decodes the document.
func (c *Collection[D]) Get(ctx context.Context, id string) (D, error) {
	var out D
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return out, err
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		return out, WrapError(c.op("get"), err)
	}
	return c.Decode(snap)
}

// Set overwrites the document.
func (c *Collection[D]) Set(ctx context.Context, id string, data D) error {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Set(ctx, data); err != nil {
		return WrapError(c.op("set"), err)
	}
	return nil
}

// Create writes the document and fails with a conflict if it already exists.
func (c *Collection[D]) Create(ctx context.Context, id string, data D) error {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Create(ctx, data); err != nil {
		return WrapError(c.op("create"), err)
	}
	return nil
}

// Query runs the built query and decodes every result.
func (c *Collection[D]) Query(ctx context.Context, build QueryBuilder) ([]D, []string, error) {
	ref, err := c.Ref(ctx)
	if err != nil {
		return nil, nil, err
	}
	query := ref.Query
	if build != nil {
		query = build(query)
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	var (
		docs []D
		ids  []string
	)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, nil, WrapError(c.op("query"), err)
		}
		decoded, err := c.Decode(snap)
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, decoded)
		ids = append(ids, snap.Ref.ID)
	}
	return docs, ids, nil
}

// Count returns the number of documents matching the built query using an aggregation.
func (c *Collection[D]) Count(ctx context.Context, build QueryBuilder) (int, error) {
	ref, err := c.Ref(ctx)
	if err != nil {
		return 0, err
	}
	query := ref.Query
	if build != nil {
		query = build(query)
	}
	result, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, WrapError(c.op("count"), err)
	}
	value, ok := result["total"].(*firestorepb.Value)
	if !ok {
		return 0, WrapError(c.op("count"), fmt.Errorf("unexpected aggregation result %T", result["total"]))
	}
	return int(value.GetIntegerValue()), nil
}

// Decode converts a snapshot into D.
func (c *Collection[D]) Decode(snap *firestore.DocumentSnapshot) (D, error) {
	var out D
	if err := snap.DataTo(&out); err != nil {
		return out, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
	}
	return out, nil
}

func (c *Collection[D]) op(action string) string {
	name := "firestore"
	if c != nil && c.name != "" {
		name = c.name
	}
	return name + "." + action
}
