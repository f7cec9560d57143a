package script

import (
	"context"
	"strings"
)

// Resolver turns a mapping's transform reference into script text before
// evaluation. A reference is inline Starlark unless it carries a file:// or
// git+ prefix:
//
//	file:///etc/idgov/scripts/normalize.star
//	git+https://host/scripts.git#main:transforms/normalize.star
type Resolver struct {
	loader *Loader
	eval   *Evaluator
}

func NewResolver(loader *Loader, eval *Evaluator) *Resolver {
	return &Resolver{loader: loader, eval: eval}
}

func (r *Resolver) Evaluate(ctx context.Context, ref string, vars map[string]any) (any, error) {
	text, err := r.loader.Load(ctx, ParseRef(ref))
	if err != nil {
		return nil, err
	}
	return r.eval.Evaluate(ctx, text, vars)
}

// ParseRef classifies a transform reference into its script source.
func ParseRef(ref string) Source {
	switch {
	case strings.HasPrefix(ref, "file://"):
		return Source{File: strings.TrimPrefix(ref, "file://")}
	case strings.HasPrefix(ref, "git+"):
		spec := strings.TrimPrefix(ref, "git+")
		repo, rest, found := strings.Cut(spec, "#")
		if !found {
			return Source{Inline: ref}
		}
		gitRef, path, _ := strings.Cut(rest, ":")
		return Source{Git: &GitSource{Repository: repo, Ref: gitRef, Path: path}}
	default:
		return Source{Inline: ref}
	}
}
