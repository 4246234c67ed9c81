package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/fieldofview/featureflag"
	fovhttp "github.com/aukilabs/fieldofview/http"
	"github.com/aukilabs/fieldofview/models"
	"github.com/aukilabs/fieldofview/modules"
	"github.com/aukilabs/fieldofview/modules/probe"
	"github.com/aukilabs/fieldofview/report"
	"github.com/aukilabs/fieldofview/scene"
	"github.com/aukilabs/fieldofview/smoketest"
	"github.com/aukilabs/fieldofview/visibility"
	fovwebsocket "github.com/aukilabs/fieldofview/websocket"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The server version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "fieldofview_info",
		Help:        "Field of view server information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// Keeps the config struct keys readable by the cli package when the binary
// is obfuscated.
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"FOV_ADDR"                  help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"FOV_ADMIN_ADDR"            help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"FOV_PUBLIC_ENDPOINT"       help:"The public endpoint where this server is reachable."`
	AuthToken          string        `cli:""        env:"FOV_AUTH_TOKEN"            help:"The bearer token clients must present. Empty disables authentication."`
	SceneDir           string        `cli:""        env:"FOV_SCENE_DIR"             help:"The directory scene documents are loaded from."`
	LogLevel           string        `cli:""        env:"FOV_LOG_LEVEL"             help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"FOV_LOG_INDENT"            help:"Indent logs."`
	SyncClockInterval  time.Duration `cli:",hidden" env:"FOV_SYNC_CLOCK_INTERVAL"   help:"Client sync clock (heartbeat) message interval."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"FOV_CLIENT_IDLE_TIMEOUT"   help:"Time until an idle client will be disconnected"`
	FrameDuration      time.Duration `cli:",hidden" env:"FOV_FRAME_DURATION"        help:"The interval between two field of view updates."`
	ScanInterval       time.Duration `cli:",hidden" env:"FOV_SCAN_INTERVAL"         help:"The interval between two visible target scans."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"FOV_LOG_SUMMARY_INTERVAL"  help:"The duration between each log summary by connection."`
	View               viewConfig    `cli:",hidden" env:"-"                         help:"Default view configuration."`
	Minio              minioConfig   `cli:",hidden" env:"-"                         help:"Object storage scene source."`
	Kafka              kafkaConfig   `cli:",hidden" env:"-"                         help:"Visibility report sink."`
	Events             eventsConfig  `cli:",hidden" env:"-"                         help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"FOV_FEATURE_FLAGS"         help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                         help:"Show version."`
	Help               bool          `cli:""        env:"-"                         help:"Show help."`
}

type viewConfig struct {
	Radius                float64 `cli:",hidden" env:"FOV_VIEW_RADIUS"                  help:"The maximum distance of a view cast, in meters."`
	Angle                 float64 `cli:",hidden" env:"FOV_VIEW_ANGLE"                   help:"The angular width of the view, in degrees."`
	MeshResolution        float64 `cli:",hidden" env:"FOV_VIEW_MESH_RESOLUTION"         help:"The number of view casts per degree."`
	EdgeResolveIterations int     `cli:",hidden" env:"FOV_VIEW_EDGE_RESOLVE_ITERATIONS" help:"The number of bisection steps used to refine an edge."`
	EdgeDistanceThreshold float64 `cli:",hidden" env:"FOV_VIEW_EDGE_DISTANCE_THRESHOLD" help:"The distance gap between two hits that makes an edge."`
}

func (c viewConfig) toVisibilityConfig() visibility.Config {
	vc := visibility.DefaultConfig()
	vc.ViewRadius = c.Radius
	vc.ViewAngle = c.Angle
	vc.MeshResolution = c.MeshResolution
	vc.EdgeResolveIterations = c.EdgeResolveIterations
	vc.EdgeDistanceThreshold = c.EdgeDistanceThreshold
	return vc
}

type minioConfig struct {
	Endpoint  string `cli:",hidden" env:"FOV_MINIO_ENDPOINT"   help:"Object storage endpoint. Empty disables the object storage source."`
	AccessKey string `cli:",hidden" env:"FOV_MINIO_ACCESS_KEY" help:"Object storage access key."`
	SecretKey string `cli:",hidden" env:"FOV_MINIO_SECRET_KEY" help:"Object storage secret key."`
	Bucket    string `cli:",hidden" env:"FOV_MINIO_BUCKET"     help:"The bucket that contains scene documents."`
	Prefix    string `cli:",hidden" env:"FOV_MINIO_PREFIX"     help:"The prefix of scene document objects."`
	Secure    bool   `cli:",hidden" env:"FOV_MINIO_SECURE"     help:"Use TLS."`
}

type kafkaConfig struct {
	Brokers      string        `cli:",hidden" env:"FOV_KAFKA_BROKERS"       help:"Comma separated Kafka brokers. Empty disables visibility reports."`
	Topic        string        `cli:",hidden" env:"FOV_KAFKA_TOPIC"         help:"The topic visibility reports are written to."`
	BatchTimeout time.Duration `cli:",hidden" env:"FOV_KAFKA_BATCH_TIMEOUT" help:"The time the writer waits to fill a batch."`
	QueueSize    int           `cli:",hidden" env:"FOV_KAFKA_QUEUE_SIZE"    help:"The number of reports buffered before being dropped."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"FOV_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"FOV_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"FOV_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"FOV_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	defaultView := visibility.DefaultConfig()

	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		SceneDir:           "scenes",
		LogLevel:           logs.InfoLevel.String(),
		SyncClockInterval:  time.Second * 5,
		ClientIdleTimeout:  time.Minute * 5,
		FrameDuration:      time.Millisecond * 50,
		ScanInterval:       time.Millisecond * 200,
		LogSummaryInterval: time.Minute,
		View: viewConfig{
			Radius:                defaultView.ViewRadius,
			Angle:                 defaultView.ViewAngle,
			MeshResolution:        defaultView.MeshResolution,
			EdgeResolveIterations: defaultView.EdgeResolveIterations,
			EdgeDistanceThreshold: defaultView.EdgeDistanceThreshold,
		},
		Kafka: kafkaConfig{
			BatchTimeout: time.Millisecond * 100,
			QueueSize:    1024,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the field of view server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "fieldofview",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)
	if unknown := featureFlags.Unknown(); len(unknown) != 0 {
		logs.WithTag("flags", unknown).Warn(errors.New("unknown feature flags"))
	}

	defaultViewConfig := conf.View.toVisibilityConfig()

	var scenes scene.Store
	var ready atomic.Bool
	go func() {
		if err := loadScenes(ctx, conf, &scenes); err != nil {
			logs.Fatal(err)
		}
		ready.Store(true)
	}()
	readinessCheck := ready.Load

	var reportChan chan report.Report
	var reportsDone <-chan struct{}
	if kc := conf.Kafka.toReportConfig(); kc.Enabled() {
		publisher := report.NewKafkaPublisher(kc)
		defer publisher.Close()

		reportChan = make(chan report.Report, conf.Kafka.QueueSize)
		reportsDone = report.ReportHandler{
			Publisher:  publisher,
			ReportChan: reportChan,
		}.HandleReports(ctx)
	} else {
		done := make(chan struct{})
		close(done)
		reportsDone = done
	}

	var sessions models.SessionStore
	defer sessions.Close()

	api := fovhttp.SceneAPI{
		Scenes:            &scenes,
		Sessions:          &sessions,
		DefaultViewConfig: defaultViewConfig,
	}

	service := mux.NewRouter()
	api.RegisterRoutes(service)

	service.Handle("/health", fovhttp.HandleWithCORS(http.HandlerFunc(fovhttp.HandleHealthCheck)))
	service.Handle("/ready", fovhttp.HandleWithCORS(fovhttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/version", fovhttp.HandleWithCORS(fovhttp.HandleVersion(version)))

	service.HandleFunc("/smoke-test", fovhttp.VerifyAuthTokenHandler(conf.AuthToken, smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint: conf.PublicEndpoint,
		SendResult: func(ctx context.Context, res smoketest.Results) error {
			logs.WithTag("endpoint", res.Endpoint).
				WithTag("status", res.Status).
				WithTag("latency_ms", res.LatencyMilliSec).
				WithTag("checks", res.Checks).
				Info("smoke test done")
			return nil
		},
	}))).Methods(http.MethodPost)

	service.Handle("/", fovhttp.HandleWithCORS(websocket.Server{
		Handshake: fovhttp.VerifyAuthToken(conf.AuthToken),
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var rh fovwebsocket.Handler = &fovwebsocket.RealtimeHandler{
				ClientSyncClockInterval: conf.SyncClockInterval,
				ClientIdleTimeout:       conf.ClientIdleTimeout,
				FrameDuration:           conf.FrameDuration,
				ScanInterval:            conf.ScanInterval,
				Scenes:                  &scenes,
				Sessions:                &sessions,
				DefaultViewConfig:       defaultViewConfig,
				Modules: []modules.Module{
					&probe.Module{},
				},
				FeatureFlags: featureFlags,
				ReportChan:   reportChan,
			}
			h := fovwebsocket.HandlerWithLogs(rh, conf.LogSummaryInterval)
			h = fovwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			fovwebsocket.Handle(ctx, conn, h)
		},
	}))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", fovhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", fovhttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("auth", conf.AuthToken != "").
		WithTag("reports", reportChan != nil).
		Info("starting field of view server")

	fovhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(service,
			fovhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)

	<-reportsDone
}

func (c kafkaConfig) toReportConfig() report.KafkaConfig {
	return report.KafkaConfig{
		Brokers:      c.Brokers,
		Topic:        c.Topic,
		BatchTimeout: c.BatchTimeout,
	}
}

// loadScenes fills the store from the scene directory, then from object
// storage when configured. A scene found in both places is taken from object
// storage.
func loadScenes(ctx context.Context, conf config, store *scene.Store) error {
	if conf.SceneDir != "" {
		if _, err := os.Stat(conf.SceneDir); err == nil {
			count, err := scene.Load(ctx, scene.DirSource{Dir: conf.SceneDir}, store)
			if err != nil {
				return errors.New("loading scenes from directory failed").
					WithTag("dir", conf.SceneDir).
					Wrap(err)
			}
			logs.WithTag("dir", conf.SceneDir).
				WithTag("count", count).
				Info("scenes loaded from directory")
		} else {
			logs.WithTag("dir", conf.SceneDir).
				Warn(errors.New("scene directory not found").Wrap(err))
		}
	}

	if conf.Minio.Endpoint == "" {
		return nil
	}

	src, err := scene.NewMinioSource(scene.MinioConfig{
		Endpoint:  conf.Minio.Endpoint,
		AccessKey: conf.Minio.AccessKey,
		SecretKey: conf.Minio.SecretKey,
		Bucket:    conf.Minio.Bucket,
		Prefix:    conf.Minio.Prefix,
		Secure:    conf.Minio.Secure,
	})
	if err != nil {
		return err
	}

	count, err := scene.Load(ctx, src, store)
	if err != nil {
		return errors.New("loading scenes from object storage failed").
			WithTag("bucket", conf.Minio.Bucket).
			Wrap(err)
	}
	logs.WithTag("bucket", conf.Minio.Bucket).
		WithTag("count", count).
		Info("scenes loaded from object storage")
	return nil
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if err := conf.View.toVisibilityConfig().Validate(); err != nil {
		return errors.New("invalid default view config").Wrap(err)
	}

	if conf.Minio.Endpoint != "" && conf.Minio.Bucket == "" {
		return errors.New("object storage bucket is required")
	}

	if (conf.Kafka.Brokers == "") != (conf.Kafka.Topic == "") {
		return errors.New("kafka brokers and topic have to be set together")
	}

	if conf.Kafka.QueueSize <= 0 {
		return errors.New("kafka queue size must be greater than 0")
	}

	if conf.ScanInterval <= 0 || conf.FrameDuration <= 0 {
		return errors.New("frame duration and scan interval must be greater than 0")
	}
	return nil
}
