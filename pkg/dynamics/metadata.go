package dynamics

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SearchOptions are the caller-facing parameters of a metadata search.
type SearchOptions struct {
	Name         string
	NameContains string
	ODataQuery   string
	Mode         OutputMode
	AsJSON       bool
}

// SearchPublicEntities queries metadata/PublicEntities. Mode defaults to ModeEntityList.
func (d *D365) SearchPublicEntities(ctx context.Context, opts SearchOptions) (*Result, error) {
	if opts.Mode == ModeEnumFlattened {
		return nil, &QueryError{Kind: ErrConfiguration, Resource: PublicEntities, Term: opts.term(),
			Err: fmt.Errorf("output mode %s does not apply to entities", opts.Mode)}
	}
	return d.search(ctx, PublicEntities, opts)
}

// SearchPublicEnums queries metadata/PublicEnumerations. Any mode other than ModeRaw
// produces the flattened member list.
func (d *D365) SearchPublicEnums(ctx context.Context, opts SearchOptions) (*Result, error) {
	if opts.Mode != ModeRaw {
		opts.Mode = ModeEnumFlattened
	}
	return d.search(ctx, PublicEnumerations, opts)
}

func (d *D365) search(ctx context.Context, resource Resource, opts SearchOptions) (*Result, error) {
	query, err := NewMetadataQuery(resource, opts.Name, opts.NameContains, opts.ODataQuery)
	if err != nil {
		return nil, err
	}
	term := query.SearchTerm()

	requestURL, err := BuildURL(d.Connection(), query)
	if err != nil {
		return nil, err
	}

	authorization, err := d.Authorization(ctx)
	if err != nil {
		return nil, withTerm(err, resource, term)
	}

	body, err := d.Fetch(ctx, requestURL, authorization)
	if err != nil {
		return nil, withTerm(err, resource, term)
	}

	result, err := Shape(body, ShapeOptions{Mode: opts.Mode, AsJSON: opts.AsJSON})
	if err != nil {
		return nil, withTerm(err, resource, term)
	}

	d.Logger.Debug("metadata search complete",
		zap.Stringer("resource", resource),
		zap.String("term", term),
		zap.Stringer("mode", opts.Mode),
		zap.Int("records", result.Len()))
	return result, nil
}

func (o SearchOptions) term() string {
	switch {
	case o.Name != "":
		return o.Name
	case o.NameContains != "":
		return o.NameContains
	default:
		return "*"
	}
}
