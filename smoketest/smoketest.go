// Package smoketest runs the visibility engine against built-in scenes and
// reports whether it behaves as expected on this server.
package smoketest

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/aukilabs/fieldofview/geometry"
	"github.com/aukilabs/fieldofview/scene"
	"github.com/aukilabs/fieldofview/visibility"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeCheckFailed = "smoke-test-check-failed"

	DefaultTimeout = 10 * time.Second
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Request is the optional body of a smoke test request.
type Request struct {
	Timeout time.Duration `json:"timeout,omitempty"`
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Results is the outcome of a smoke test run.
type Results struct {
	Endpoint        string        `json:"endpoint"`
	Status          Status        `json:"status"`
	LatencyMilliSec float64       `json:"latency_ms"`
	Checks          []CheckResult `json:"checks"`
}

type Options struct {
	// The public endpoint of the server.
	Endpoint string

	// Called with the results of each run.
	SendResult func(context.Context, Results) error
}

type testCtxKey string

var testCtxKeyValue testCtxKey = "test-context"

type testContext struct {
	context.Context
	Cancel func()
}

// HandleSmokeTest starts a smoke test in the background and responds
// immediately. Results are given to opts.SendResult.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		go func() {
			defer func() {
				// Signals tests that the run is over.
				if tctx := ctx.Value(testCtxKeyValue); tctx != nil {
					testCtx := tctx.(testContext)
					if testCtx.Cancel != nil {
						testCtx.Cancel()
					}
				}
			}()

			res := Run(ctx, req.Timeout)
			res.Endpoint = opts.Endpoint

			if res.Status != StatusSuccess {
				logs.WithTag("endpoint", opts.Endpoint).
					WithTag("checks", res.Checks).
					Warn(errors.New("smoke test failed").WithType(ErrTypeCheckFailed))
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("endpoint", opts.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}

type check struct {
	name string
	run  func() error
}

var checks = []check{
	{name: "fan", run: checkFan},
	{name: "open_sector", run: checkOpenSector},
	{name: "edge_convergence", run: checkEdgeConvergence},
	{name: "target_scan", run: checkTargetScan},
}

// Run performs every check until one exceeds the timeout.
func Run(ctx context.Context, timeout time.Duration) Results {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := Results{
		Status: StatusSuccess,
		Checks: make([]CheckResult, 0, len(checks)),
	}

	start := time.Now()
	for _, c := range checks {
		result := CheckResult{
			Name:   c.name,
			Status: StatusSuccess,
		}

		err := ctx.Err()
		if err == nil {
			err = c.run()
		}
		if err != nil {
			result.Status = StatusFailed
			result.Error = err.Error()
			res.Status = StatusFailed
		}

		res.Checks = append(res.Checks, result)
	}

	if res.Status == StatusSuccess {
		res.LatencyMilliSec = float64(time.Since(start)) / float64(time.Millisecond)
	}
	return res
}

func newWorld(doc scene.Document) (*scene.World, error) {
	sc, err := scene.NewScene("smoke-test", doc)
	if err != nil {
		return nil, err
	}
	return sc.Snapshot(), nil
}

func checkFailed(msg string) error {
	return errors.New(msg).WithType(ErrTypeCheckFailed)
}

// A wall in front of the observer gives a fan with one vertex per view cast
// plus the origin.
func checkFan() error {
	world, err := newWorld(scene.Document{
		Obstacles: []scene.Obstacle{
			{
				ID:   "wall",
				Kind: scene.Segment,
				A:    &geometry.Vector3{X: -20, Z: 5},
				B:    &geometry.Vector3{X: 20, Z: 5},
			},
		},
	})
	if err != nil {
		return err
	}

	config := visibility.DefaultConfig()
	mesh := visibility.NewEngine(config, world).ComputeVisibilityPolygon(visibility.Observer{})

	switch {
	case len(mesh.ViewCasts) != int(config.ViewAngle*config.MeshResolution):
		return checkFailed("unexpected view cast count")

	case len(mesh.Vertices) != len(mesh.ViewCasts)+1:
		return checkFailed("unexpected vertex count")

	case mesh.Vertices[0] != (geometry.Vector3{}):
		return checkFailed("fan does not start at the observer")

	case len(mesh.Triangles) != len(mesh.Vertices)-2:
		return checkFailed("unexpected triangle count")
	}

	for _, cast := range mesh.ViewCasts {
		if !cast.Hit {
			return checkFailed("view cast missed the wall")
		}
	}
	return nil
}

// Without obstacles, every view cast reaches the view radius and no edge is
// found.
func checkOpenSector() error {
	world, err := newWorld(scene.Document{})
	if err != nil {
		return err
	}

	config := visibility.DefaultConfig()
	mesh := visibility.NewEngine(config, world).ComputeVisibilityPolygon(visibility.Observer{Heading: 30})

	if len(mesh.Edges) != 0 {
		return checkFailed("edges found in an empty scene")
	}

	for _, cast := range mesh.ViewCasts {
		if cast.Hit || math.Abs(cast.Distance-config.ViewRadius) > 1e-9 {
			return checkFailed("view cast did not reach the view radius")
		}
	}
	return nil
}

// A wall that starts inside the view gives exactly one edge, narrowed down
// to the configured precision around the wall end.
func checkEdgeConvergence() error {
	world, err := newWorld(scene.Document{
		Obstacles: []scene.Obstacle{
			{
				ID:   "wall",
				Kind: scene.Segment,
				A:    &geometry.Vector3{X: 0.5, Z: 5},
				B:    &geometry.Vector3{X: 10, Z: 5},
			},
		},
	})
	if err != nil {
		return err
	}

	config := visibility.DefaultConfig()
	mesh := visibility.NewEngine(config, world).ComputeVisibilityPolygon(visibility.Observer{})

	if len(mesh.Edges) != 1 {
		return checkFailed("expected a single edge")
	}

	edge := mesh.Edges[0]
	precision := (config.ViewAngle / (config.ViewAngle * config.MeshResolution)) / math.Pow(2, float64(config.EdgeResolveIterations))
	wallEnd := math.Atan2(0.5, 5) * 180 / math.Pi

	switch {
	case edge.MaxAngle-edge.MinAngle > precision+1e-9:
		return checkFailed("edge did not converge")

	case wallEnd < edge.MinAngle-1e-9 || wallEnd > edge.MaxAngle+1e-9:
		return checkFailed("edge converged away from the wall end")
	}
	return nil
}

// Only the target in the view cone that no obstacle hides is visible.
func checkTargetScan() error {
	world, err := newWorld(scene.Document{
		Obstacles: []scene.Obstacle{
			{
				ID:   "wall",
				Kind: scene.Segment,
				A:    &geometry.Vector3{X: -5, Z: 5},
				B:    &geometry.Vector3{X: 5, Z: 5},
			},
		},
		Targets: []scene.Target{
			{Handle: "front", Position: geometry.Vector3{Z: 3}},
			{Handle: "hidden", Position: geometry.Vector3{Z: 7}},
			{Handle: "behind", Position: geometry.Vector3{Z: -3}},
		},
	})
	if err != nil {
		return err
	}

	visible := visibility.NewEngine(visibility.DefaultConfig(), world).
		ComputeVisibleTargets(visibility.Observer{})

	if len(visible) != 1 || visible[0] != "front" {
		return errors.New("unexpected visible targets").
			WithType(ErrTypeCheckFailed).
			WithTag("visible", visible)
	}
	return nil
}
