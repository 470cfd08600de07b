package query

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/velesdb/veles/pkg/fusion"
	"github.com/velesdb/veles/pkg/hnsw"
	"github.com/velesdb/veles/pkg/veles"
	"github.com/velesdb/veles/pkg/velesql"
)

// defaultK is the candidate pool size pulled from the vector index before
// the residual filter/LIMIT narrows it, used whenever a statement's LIMIT
// doesn't give a tighter bound.
const defaultK = 100

// runNear executes a NEAR predicate against col's vector index, per §4.I
// "resolve vector parameter, call HNSW top-k with configured ef_search or
// preset mode, attach column/payload fields".
func runNear(ctx context.Context, col *Collection, pred *velesql.NearPredicate, params map[string]any, limit int) ([]hnsw.Result, error) {
	v, err := Eval(pred.Param, &Env{Params: params})
	if err != nil {
		return nil, err
	}
	vec, err := asVector(v)
	if err != nil {
		return nil, err
	}
	k := limit
	if k <= 0 {
		k = defaultK
	}
	ef := col.Config.HNSW.EfSearch
	if ef <= 0 {
		ef = veles.DefaultHNSWParams().EfSearch
	}
	start := time.Now()
	results, err := col.Vectors.Search(ctx, vec, k, ef)
	col.Stats.Record(StoreVector, time.Since(start))
	if err != nil {
		return nil, err
	}
	return results, nil
}

// runNearFused resolves NEAR_FUSED's parameter list and runs one HNSW
// search per parameter concurrently via errgroup, then fuses the k
// independent ranked lists with the requested strategy, per §4.I
// "k independent HNSW searches in parallel + fusion + filter/ORDER
// BY/LIMIT".
func runNearFused(ctx context.Context, col *Collection, pred *velesql.NearFusedPredicate, params map[string]any, limit int) ([]fusion.Item, error) {
	strategy, err := fusionStrategy(pred.Strategy, pred.StrategyArgs)
	if err != nil {
		return nil, err
	}

	k := limit
	if k <= 0 {
		k = defaultK
	}
	ef := col.Config.HNSW.EfSearch
	if ef <= 0 {
		ef = veles.DefaultHNSWParams().EfSearch
	}

	lists := make([][]fusion.Item, len(pred.Params))
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i, paramExpr := range pred.Params {
		i, paramExpr := i, paramExpr
		g.Go(func() error {
			v, err := Eval(paramExpr, &Env{Params: params})
			if err != nil {
				return err
			}
			vec, err := asVector(v)
			if err != nil {
				return err
			}
			results, err := col.Vectors.Search(gctx, vec, k, ef)
			if err != nil {
				return err
			}
			items := make([]fusion.Item, len(results))
			for j, r := range results {
				items[j] = fusion.Item{ID: r.ID, Score: r.Score}
			}
			lists[i] = items
			return nil
		})
	}
	err = g.Wait()
	col.Stats.Record(StoreVector, time.Since(start))
	if err != nil {
		return nil, err
	}
	return fusion.Fuse(strategy, lists), nil
}

func fusionStrategy(name string, args map[string]float64) (fusion.Strategy, error) {
	switch name {
	case "rrf", "":
		k := args["k"]
		if k <= 0 {
			k = 60
		}
		return fusion.NewRRF(k), nil
	case "average":
		return fusion.NewAverage(), nil
	case "maximum":
		return fusion.NewMaximum(), nil
	case "weighted":
		return fusion.NewWeighted(args["avg_weight"], args["max_weight"], args["hit_weight"])
	default:
		return nil, veles.Newf(veles.KindUnsupportedFeature, "unknown fusion strategy %q", name).WithDetail("feature", "fusion:"+name)
	}
}
