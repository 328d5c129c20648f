// Package clash implements the clash detection pipeline (4.6, K): a sparse
// scene load per container, a pair of set-level BVHs for broadphase, a
// bipartite scheduler bounding peak resident mesh count, per-pair
// triangle-level narrowphase, and composite-level accumulation into a
// symmetry-stable report. The stage split (set-level broadphase, per-pair
// narrowphase, per-composite accumulation feeding a report) is grounded on
// 3drepobouncer's own clashdetection pipeline: clash_pipelines.cpp's
// Clearance/Hard pipeline classes, clash_scheduler.cpp's bipartite cache
// scheduler, bvh_operators.cpp's broadphase traversal, and geometry_tests.cpp's
// closest-point primitives (see polydepth.go for the Hard path's
// penetration-depth estimation, ported from repo_polydepth.cpp).
package clash

import (
	"context"
	"fmt"
	"sort"

	"github.com/brightforge/modelengine/internal/blob"
	"github.com/brightforge/modelengine/internal/bvh"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/modelerr"
	"github.com/brightforge/modelengine/internal/obs"
	"github.com/brightforge/modelengine/internal/platform/logger"
	"github.com/brightforge/modelengine/internal/store"
)

// Type selects the clash pipeline's narrowphase test (4.6).
type Type string

const (
	TypeClearance Type = "clearance"
	TypeHard      Type = "hard"
)

// ContainerRef resolves a configuration's container name to the
// database/project pair the document store is keyed by (6.1, GLOSSARY:
// "Container / project: the unit of revision").
type ContainerRef struct {
	Database string
	Project  string
}

// MeshRef is one mesh reference of a CompositeObject (4.6: "each mesh
// reference is (container, unique id)").
type MeshRef struct {
	Container string
	UniqueID  ids.UUID
}

// CompositeObject is a user-defined clash target, possibly spanning
// several containers (4.6, GLOSSARY).
type CompositeObject struct {
	ID     ids.UUID
	Meshes []MeshRef
}

// Config is the clash pipeline's input (4.6: "configuration {type,
// tolerance, setA, setB, containers}"). Tolerance doubles as the
// Clearance max-distance and the Hard touching epsilon.
type Config struct {
	Type       Type
	Tolerance  float32
	SetA, SetB []CompositeObject
	Containers map[string]ContainerRef
}

// CompositeClash is one entry of a Report (4.6 step 8).
type CompositeClash struct {
	IDA, IDB ids.UUID
	// Positions describes the clash geometry: for Clearance, the two
	// endpoints of the shortest line found between the composites; for
	// Hard, a contact point followed by contact point + penetration
	// vector (so Positions[1]-Positions[0] is the penetration vector).
	Positions   []ids.Vec3
	Fingerprint string
}

// Report is the clash pipeline's output (4.6 step 8).
type Report struct {
	Clashes []CompositeClash
}

// Run executes the full pipeline (4.6 steps 1-8) against db/blobs.
func Run(ctx context.Context, db store.DocumentStore, blobs blob.Store, log *logger.Logger, cfg Config) (*Report, error) {
	var result *Report
	err := obs.WithSpan(ctx, "clash.Run", func(ctx context.Context) error {
		if cfg.Type != TypeClearance && cfg.Type != TypeHard {
			return modelerr.New(modelerr.CodeInvalidInput, "clash.Run", "unknown clash type", nil)
		}

		instA, err := loadSet(ctx, db, cfg.Containers, cfg.SetA)
		if err != nil {
			return err
		}
		instB, err := loadSet(ctx, db, cfg.Containers, cfg.SetB)
		if err != nil {
			return err
		}
		if len(instA) == 0 || len(instB) == 0 {
			result = &Report{}
			return nil
		}

		bvhA := bvh.Build(boundsOf(instA), centroidsOf(instA), 1)
		bvhB := bvh.Build(boundsOf(instB), centroidsOf(instB), 1)

		pairs := schedule(broadphasePairs(cfg, bvhA, bvhB))
		lastA, lastB := lastUse(pairs)

		cacheA := map[int]*loadedMesh{}
		cacheB := map[int]*loadedMesh{}
		accs := map[string]*accumulator{}
		var order []string

		for i, p := range pairs {
			a := cacheA[p.a]
			if a == nil {
				inst := instA[p.a]
				a, err = loadMeshTriangles(ctx, db, blobs, log, inst, cfg.Containers[inst.container])
				if err != nil {
					return err
				}
				cacheA[p.a] = a
			}
			b := cacheB[p.b]
			if b == nil {
				inst := instB[p.b]
				b, err = loadMeshTriangles(ctx, db, blobs, log, inst, cfg.Containers[inst.container])
				if err != nil {
					return err
				}
				cacheB[p.b] = b
			}

			key := compositeKey(instA[p.a].compositeID, instB[p.b].compositeID)
			acc, ok := accs[key]
			if !ok {
				acc = newAccumulator(instA[p.a].compositeID, instB[p.b].compositeID)
				accs[key] = acc
				order = append(order, key)
			}

			switch cfg.Type {
			case TypeClearance:
				if found, line := clearanceNarrowphase(cfg.Tolerance, a, b); found {
					acc.recordClearance(line)
				}
			case TypeHard:
				if hardNarrowphase(cfg.Tolerance, a, b) {
					acc.recordHard(p.a, a.triangles, p.b, b.triangles)
				}
			}

			if lastA[p.a] == i {
				delete(cacheA, p.a)
			}
			if lastB[p.b] == i {
				delete(cacheB, p.b)
			}
		}

		var out []CompositeClash
		for _, k := range order {
			if cc, ok := accs[k].result(); ok {
				out = append(out, cc)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
		result = &Report{Clashes: out}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func compositeKey(a, b ids.UUID) string { return a.String() + "|" + b.String() }

func boundsOf(insts []meshInstance) []ids.Bounds {
	out := make([]ids.Bounds, len(insts))
	for i, m := range insts {
		out[i] = m.bounds
	}
	return out
}

func centroidsOf(insts []meshInstance) []ids.Vec3 {
	out := make([]ids.Vec3, len(insts))
	for i, m := range insts {
		out[i] = m.bounds.Center()
	}
	return out
}

// broadphasePairs runs the top-level pair traversal (4.6 step 2) over the
// two set-level BVHs, collecting every candidate mesh-instance pair rather
// than only the single closest (the top level must surface every pair,
// since different members of the same composite can each independently
// contribute a clash).
func broadphasePairs(cfg Config, a, b *bvh.BVH) []pairKey {
	var out []pairKey
	switch cfg.Type {
	case TypeClearance:
		bvh.PairTraverseDistance(a, b, cfg.Tolerance, func(ai, bj int) float32 {
			out = append(out, pairKey{ai, bj})
			// Returning the fixed tolerance (never shrinking it) keeps the
			// traversal from pruning candidates once one pair is found.
			return cfg.Tolerance
		})
	case TypeHard:
		bvh.PairTraverseIntersect(a, b, 0, func(ai, bj int) {
			out = append(out, pairKey{ai, bj})
		})
	}
	return out
}

func lastUse(pairs []pairKey) (map[int]int, map[int]int) {
	lastA := map[int]int{}
	lastB := map[int]int{}
	for i, p := range pairs {
		lastA[p.a] = i
		lastB[p.b] = i
	}
	return lastA, lastB
}

// fingerprint hashes idA/idB and positions in a sort-normalised order so
// swapping setA/setB (and the resulting idA/idB and position order)
// produces the same value (4.6 step 8, §8 "Symmetry").
func fingerprint(idA, idB ids.UUID, positions []ids.Vec3) string {
	pair := []string{idA.String(), idB.String()}
	sort.Strings(pair)
	posStrs := make([]string, len(positions))
	for i, p := range positions {
		posStrs[i] = fmt.Sprintf("%.6f|%.6f|%.6f", p.X, p.Y, p.Z)
	}
	sort.Strings(posStrs)
	return ids.Fingerprint(append(pair, posStrs...)...)
}
