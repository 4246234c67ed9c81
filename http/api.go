package http

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/aukilabs/fieldofview/geometry"
	"github.com/aukilabs/fieldofview/models"
	"github.com/aukilabs/fieldofview/scene"
	"github.com/aukilabs/fieldofview/visibility"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/gorilla/mux"
	"github.com/segmentio/encoding/json"
)

// The maximum size of a scene document or query body.
const maxBodySize = 8 << 20

// SceneAPI exposes the scenes over REST: CRUD on documents, obstacles and
// targets, and one-shot visibility evaluations.
type SceneAPI struct {
	Scenes *scene.Store

	// Optional. Adds the realtime session of a scene to its debug info.
	Sessions *models.SessionStore

	// The view config of evaluations that do not provide one.
	DefaultViewConfig visibility.Config
}

// Router returns the routes of the API.
func (a *SceneAPI) Router() *mux.Router {
	r := mux.NewRouter()
	a.RegisterRoutes(r)
	return r
}

func (a *SceneAPI) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/scenes", a.listScenes).Methods(http.MethodGet)
	r.HandleFunc("/scenes/{id}", a.getScene).Methods(http.MethodGet)
	r.HandleFunc("/scenes/{id}", a.putScene).Methods(http.MethodPut)
	r.HandleFunc("/scenes/{id}", a.deleteScene).Methods(http.MethodDelete)
	r.HandleFunc("/scenes/{id}/debug", a.getSceneDebug).Methods(http.MethodGet)
	r.HandleFunc("/scenes/{id}/obstacles", a.putObstacle).Methods(http.MethodPut)
	r.HandleFunc("/scenes/{id}/obstacles/{obstacle}", a.deleteObstacle).Methods(http.MethodDelete)
	r.HandleFunc("/scenes/{id}/targets/{target}", a.putTarget).Methods(http.MethodPut)
	r.HandleFunc("/scenes/{id}/targets/{target}", a.deleteTarget).Methods(http.MethodDelete)
	r.HandleFunc("/scenes/{id}/fov", a.postFieldOfView).Methods(http.MethodPost)
	r.HandleFunc("/scenes/{id}/visible-targets", a.postVisibleTargets).Methods(http.MethodPost)
}

// SceneSummary describes a scene in listings.
type SceneSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Version       uint64 `json:"version"`
	ObstacleCount int    `json:"obstacle_count"`
	TargetCount   int    `json:"target_count"`
}

func (a *SceneAPI) listScenes(w http.ResponseWriter, r *http.Request) {
	ids := a.Scenes.IDs()
	summaries := make([]SceneSummary, 0, len(ids))

	for _, id := range ids {
		sc, ok := a.Scenes.Get(id)
		if !ok {
			continue
		}

		doc := sc.Document()
		summaries = append(summaries, SceneSummary{
			ID:            id,
			Name:          doc.Name,
			Version:       sc.Version(),
			ObstacleCount: len(doc.Obstacles),
			TargetCount:   len(doc.Targets),
		})
	}

	RespondJSON(w, http.StatusOK, summaries)
}

func (a *SceneAPI) getScene(w http.ResponseWriter, r *http.Request) {
	sc, err := a.Scenes.MustGet(mux.Vars(r)["id"])
	if err != nil {
		RespondError(w, err)
		return
	}

	// Document and version are read apart, so the version may be newer than
	// the document.
	doc := sc.Document()
	version := sc.Version()

	format := responseFormat(r)
	b, err := scene.EncodeDocument(doc, format)
	if err != nil {
		RespondError(w, errors.New("encoding scene document failed").Wrap(err))
		return
	}

	contentType := contentTypeJSON
	if format == scene.YAML {
		contentType = contentTypeYAML
	}

	w.Header().Set(HeaderContentType, contentType)
	w.Header().Set(HeaderSceneVersion, strconv.FormatUint(version, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func (a *SceneAPI) putScene(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !scene.IsValidRef(id) {
		RespondError(w, badRequest("invalid scene id", nil))
		return
	}

	body, err := readBody(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	doc, err := scene.DecodeDocument(body, requestFormat(r))
	if err != nil {
		RespondError(w, err)
		return
	}

	_, existed := a.Scenes.Get(id)
	sc, err := a.Scenes.Put(id, doc)
	if err != nil {
		RespondError(w, err)
		return
	}

	logs.WithTag("scene_id", id).
		WithTag("scene_version", sc.Version()).
		Info("scene document stored")

	statusCode := http.StatusOK
	if !existed {
		statusCode = http.StatusCreated
	}
	RespondJSON(w, statusCode, summaryOf(sc))
}

func (a *SceneAPI) deleteScene(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !a.Scenes.Remove(id) {
		RespondError(w, sceneNotFound(id))
		return
	}

	logs.WithTag("scene_id", id).Info("scene removed")
	w.WriteHeader(http.StatusNoContent)
}

// SceneDebugInfo is the debug view of a scene.
type SceneDebugInfo struct {
	ID      string          `json:"id"`
	World   scene.DebugInfo `json:"world"`
	Session *SessionInfo    `json:"session,omitempty"`
}

// SessionInfo describes the realtime session of a scene.
type SessionInfo struct {
	SessionUUID  string   `json:"session_uuid"`
	Participants []uint32 `json:"participants"`
}

func (a *SceneAPI) getSceneDebug(w http.ResponseWriter, r *http.Request) {
	sc, err := a.Scenes.MustGet(mux.Vars(r)["id"])
	if err != nil {
		RespondError(w, err)
		return
	}

	info := SceneDebugInfo{
		ID:    sc.ID,
		World: sc.Snapshot().GetDebugInfo(),
	}

	if a.Sessions != nil {
		if session, ok := a.Sessions.GetBySceneID(sc.ID); ok {
			participants := session.GetParticipants()
			ids := make([]uint32, len(participants))
			for i, p := range participants {
				ids[i] = p.ID
			}

			info.Session = &SessionInfo{
				SessionUUID:  session.SessionUUID,
				Participants: ids,
			}
		}
	}

	RespondJSON(w, http.StatusOK, info)
}

func (a *SceneAPI) putObstacle(w http.ResponseWriter, r *http.Request) {
	sc, err := a.Scenes.MustGet(mux.Vars(r)["id"])
	if err != nil {
		RespondError(w, err)
		return
	}

	var obstacle scene.Obstacle
	if err := decodeJSONBody(r, &obstacle); err != nil {
		RespondError(w, err)
		return
	}

	if err := sc.AddObstacle(obstacle); err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, summaryOf(sc))
}

func (a *SceneAPI) deleteObstacle(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	sc, err := a.Scenes.MustGet(vars["id"])
	if err != nil {
		RespondError(w, err)
		return
	}

	if !sc.RemoveObstacle(vars["obstacle"]) {
		RespondError(w, errors.New("obstacle not found").
			WithType(scene.ErrTypeSceneNotFound).
			WithTag("obstacle_id", vars["obstacle"]))
		return
	}

	RespondJSON(w, http.StatusOK, summaryOf(sc))
}

func (a *SceneAPI) putTarget(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	sc, err := a.Scenes.MustGet(vars["id"])
	if err != nil {
		RespondError(w, err)
		return
	}

	var target scene.Target
	if err := decodeJSONBody(r, &target); err != nil {
		RespondError(w, err)
		return
	}
	target.Handle = vars["target"]

	if err := sc.SetTarget(target); err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, summaryOf(sc))
}

func (a *SceneAPI) deleteTarget(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	sc, err := a.Scenes.MustGet(vars["id"])
	if err != nil {
		RespondError(w, err)
		return
	}

	if !sc.RemoveTarget(vars["target"]) {
		RespondError(w, errors.New("target not found").
			WithType(scene.ErrTypeSceneNotFound).
			WithTag("target_handle", vars["target"]))
		return
	}

	RespondJSON(w, http.StatusOK, summaryOf(sc))
}

// EvaluationRequest is the body of the one-shot evaluation endpoints.
type EvaluationRequest struct {
	Observer   visibility.Observer `json:"observer"`
	ViewConfig *visibility.Config  `json:"view_config,omitempty"`
}

// FieldOfViewResponse is a visibility fan in observer local space.
type FieldOfViewResponse struct {
	SceneVersion uint64                `json:"scene_version"`
	Vertices     []geometry.Vector3    `json:"vertices"`
	Indices      []int                 `json:"indices"`
	ViewCasts    []visibility.ViewCast `json:"view_casts"`
	Edges        []visibility.EdgeInfo `json:"edges"`
}

type VisibleTargetsResponse struct {
	SceneVersion uint64                    `json:"scene_version"`
	Targets      []visibility.TargetHandle `json:"targets"`
}

func (a *SceneAPI) postFieldOfView(w http.ResponseWriter, r *http.Request) {
	world, engine, observer, err := a.evaluation(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	mesh := engine.ComputeVisibilityPolygon(observer)
	res := FieldOfViewResponse{
		SceneVersion: world.Version(),
		Vertices:     mesh.Vertices,
		Indices:      mesh.Indices(),
		ViewCasts:    mesh.ViewCasts,
		Edges:        mesh.Edges,
	}
	if res.ViewCasts == nil {
		res.ViewCasts = []visibility.ViewCast{}
	}
	if res.Edges == nil {
		res.Edges = []visibility.EdgeInfo{}
	}

	RespondJSON(w, http.StatusOK, res)
}

func (a *SceneAPI) postVisibleTargets(w http.ResponseWriter, r *http.Request) {
	world, engine, observer, err := a.evaluation(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	targets := engine.ComputeVisibleTargets(observer)
	if targets == nil {
		targets = []visibility.TargetHandle{}
	}

	RespondJSON(w, http.StatusOK, VisibleTargetsResponse{
		SceneVersion: world.Version(),
		Targets:      targets,
	})
}

// evaluation decodes an evaluation request and binds an engine to the current
// snapshot of the scene.
func (a *SceneAPI) evaluation(r *http.Request) (*scene.World, *visibility.Engine, visibility.Observer, error) {
	sc, err := a.Scenes.MustGet(mux.Vars(r)["id"])
	if err != nil {
		return nil, nil, visibility.Observer{}, err
	}

	var req EvaluationRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return nil, nil, visibility.Observer{}, err
	}

	if !req.Observer.Valid() {
		return nil, nil, visibility.Observer{}, badRequest("invalid observer", nil)
	}

	config := a.DefaultViewConfig
	if req.ViewConfig != nil {
		if err := req.ViewConfig.Validate(); err != nil {
			return nil, nil, visibility.Observer{}, err
		}
		config = *req.ViewConfig
	}

	world := sc.Snapshot()
	return world, visibility.NewEngine(config, world), req.Observer, nil
}

func summaryOf(sc *scene.Scene) SceneSummary {
	doc := sc.Document()
	return SceneSummary{
		ID:            sc.ID,
		Name:          doc.Name,
		Version:       sc.Version(),
		ObstacleCount: len(doc.Obstacles),
		TargetCount:   len(doc.Targets),
	}
}

func sceneNotFound(id string) error {
	return errors.New("scene not found").
		WithType(scene.ErrTypeSceneNotFound).
		WithTag("scene_id", id)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, badRequest("reading body failed", err)
	}
	if len(body) > maxBodySize {
		return nil, badRequest("body is too large", nil)
	}
	return body, nil
}

func decodeJSONBody(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return badRequest("decoding body failed", err)
	}
	return nil
}

// requestFormat returns the format of a request body, from the format query
// parameter or the content type.
func requestFormat(r *http.Request) scene.Format {
	if f, ok := formatParam(r); ok {
		return f
	}
	return formatOfMediaType(r.Header.Get(HeaderContentType))
}

// responseFormat returns the format a client asks for, from the format query
// parameter or the Accept header.
func responseFormat(r *http.Request) scene.Format {
	if f, ok := formatParam(r); ok {
		return f
	}
	return formatOfMediaType(r.Header.Get("Accept"))
}

func formatParam(r *http.Request) (scene.Format, bool) {
	switch scene.Format(r.URL.Query().Get("format")) {
	case scene.YAML:
		return scene.YAML, true
	case scene.JSON:
		return scene.JSON, true
	default:
		return "", false
	}
}

func formatOfMediaType(v string) scene.Format {
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return scene.JSON
	}

	switch mediaType {
	case contentTypeYAML, "application/x-yaml", "text/yaml":
		return scene.YAML
	default:
		return scene.JSON
	}
}
