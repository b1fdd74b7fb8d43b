// Package main provides the searchcore news intelligence API service.
//
// It wires storage, the event Journal, the search and deep-search job
// managers, external source fan-out, callback ingress, and the timeout
// sweeper into the HTTP server defined in internal/api.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/newsintel/searchcore/internal/aijob"
	"github.com/newsintel/searchcore/internal/api"
	"github.com/newsintel/searchcore/internal/api/middleware"
	"github.com/newsintel/searchcore/internal/callback"
	"github.com/newsintel/searchcore/internal/config"
	"github.com/newsintel/searchcore/internal/corpus"
	"github.com/newsintel/searchcore/internal/dispatch"
	"github.com/newsintel/searchcore/internal/eventbus"
	"github.com/newsintel/searchcore/internal/searchjob"
	"github.com/newsintel/searchcore/internal/sources"
	"github.com/newsintel/searchcore/internal/storage"
	"github.com/newsintel/searchcore/internal/sweeper"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "searchcore"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("starting search core service",
		slog.String("service", name),
		slog.String("version", version),
	)

	deps, err := buildDependencies(logger, &serverConfig)
	if err != nil {
		logger.Error("failed to build dependencies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	defer cancelSweeper()

	deps.sweeper.Start(sweeperCtx)

	server := api.NewServer(&serverConfig, deps.apiDeps)

	if err := server.Start(); err != nil {
		logger.Error("server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("search core service stopped")
}

// wiredDependencies groups everything main assembles before handing
// control to the HTTP server and the background sweeper.
type wiredDependencies struct {
	apiDeps api.Dependencies
	sweeper *sweeper.Sweeper
}

// buildDependencies wires storage, the event bus, the job managers, the
// external source fan-out, callback ingress, and the sweeper, following
// the same "config is what, dependencies are how" split as api.NewServer.
func buildDependencies(logger *slog.Logger, serverConfig *api.ServerConfig) (wiredDependencies, error) {
	domainConfig := newDomainConfig()

	storageConfig := storage.LoadConfig()
	if err := storageConfig.Validate(); err != nil {
		return wiredDependencies{}, err
	}

	conn, err := storage.NewConnection(storageConfig)
	if err != nil {
		return wiredDependencies{}, err
	}

	logger.Info("connected to storage", slog.String("database", storageConfig.MaskDatabaseURL()))

	searchJobStore := storage.NewPostgresSearchJobStore(conn)
	aiJobStore := storage.NewPostgresAiJobStore(conn)
	aiSubTaskStore := storage.NewPostgresAiSubTaskStore(conn)
	crawlEvidenceStore := storage.NewPostgresCrawlEvidenceStore(conn)

	bus := eventbus.NewBus(domainConfig.eventBus)

	searchManager := searchjob.NewManager(searchJobStore, bus)

	routingTable, err := aijob.LoadRoutingTableFromEnv()
	if err != nil {
		return wiredDependencies{}, err
	}

	publisher := newPublisher(logger, domainConfig)

	orchestrator := aijob.NewOrchestrator(aiJobStore, aiSubTaskStore, bus, publisher, routingTable, domainConfig.callbackURLFor)
	orchestrator.SetMaxRetries(domainConfig.aiMaxRetries)

	callbackProcessor := callback.NewProcessor(aiSubTaskStore, crawlEvidenceStore, orchestrator, bus)

	searcher := corpus.NewSearcher(conn)
	fanout := buildFanout(bus, searcher, domainConfig)

	timeoutSweeper := sweeper.New(
		domainConfig.sweeper,
		searchJobStore,
		aiJobStore,
		aiSubTaskStore,
		searchManager,
		orchestrator,
	)

	var rateLimiter middleware.RateLimiter
	if serverConfig.RateLimiter != nil {
		rateLimiter = serverConfig.RateLimiter
	} else {
		rateLimiter = middleware.NewInMemoryRateLimiter(middleware.LoadConfig())
	}

	return wiredDependencies{
		apiDeps: api.Dependencies{
			RateLimiter:   rateLimiter,
			Conn:          conn,
			SearchJobs:    searchJobStore,
			AiJobs:        aiJobStore,
			Bus:           bus,
			SearchManager: searchManager,
			Orchestrator:  orchestrator,
			Fanout:        fanout,
			Searcher:      searcher,
			Callback:      callbackProcessor,
		},
		sweeper: timeoutSweeper,
	}, nil
}

// domainConfig is the set of env-driven knobs buildDependencies reads:
// the event bus, sweeper and retry settings (the same variables and
// defaults internal/searchconfig reads), plus dispatch transport
// selection and the external source list, which searchconfig does not
// cover.
type domainConfig struct {
	eventBus     eventbus.Config
	sweeper      sweeper.Config
	aiMaxRetries int

	dispatchTransport string
	kafkaBrokers      []string
	kafkaTopic        string
	httpProviderURLs  map[string]string
	dispatchTimeout   time.Duration

	callbackBaseURL string

	externalSources map[string]string
	sourceTimeout   time.Duration
	corpusPageSize  int
}

func newDomainConfig() domainConfig {
	return domainConfig{
		eventBus:     loadEventBusConfig(),
		sweeper:      loadSweeperConfig(),
		aiMaxRetries: config.GetEnvInt("SEARCHCORE_AI_MAX_RETRIES", 2),

		dispatchTransport: config.GetEnvStr("SEARCHCORE_DISPATCH_TRANSPORT", "http"),
		kafkaBrokers:      config.ParseCommaSeparatedList(config.GetEnvStr("SEARCHCORE_KAFKA_BROKERS", "")),
		kafkaTopic:        config.GetEnvStr("SEARCHCORE_KAFKA_TOPIC", "searchcore.ai-tasks"),
		httpProviderURLs:  parseKeyValueList(config.GetEnvStr("SEARCHCORE_PROVIDER_URLS", "")),
		dispatchTimeout:   config.GetEnvDuration("SEARCHCORE_DISPATCH_TIMEOUT", 10*time.Second),

		callbackBaseURL: config.GetEnvStr("SEARCHCORE_CALLBACK_BASE_URL", "http://localhost:8080"),

		externalSources: parseKeyValueList(config.GetEnvStr("SEARCHCORE_EXTERNAL_SOURCES", "")),
		sourceTimeout:   config.GetEnvDuration("SEARCHCORE_SOURCE_TIMEOUT", 10*time.Second),
		corpusPageSize:  config.GetEnvInt("SEARCHCORE_CORPUS_PAGE_SIZE", 20),
	}
}

// loadEventBusConfig and loadSweeperConfig mirror internal/searchconfig's
// shape but are kept local since they share domainConfig's single Load
// pass rather than a separate exported type.
func loadEventBusConfig() eventbus.Config {
	return eventbus.Config{
		BufferSize:      config.GetEnvInt("SEARCHCORE_EVENT_BUFFER_SIZE", eventbus.DefaultBufferSize),
		RetentionWindow: config.GetEnvDuration("SEARCHCORE_EVENT_RETENTION_WINDOW", eventbus.DefaultRetentionWindow),
		SweepInterval:   config.GetEnvDuration("SEARCHCORE_EVENT_SWEEP_INTERVAL", eventbus.DefaultSweepInterval),
	}
}

func loadSweeperConfig() sweeper.Config {
	return sweeper.Config{
		Interval:             config.GetEnvDuration("SEARCHCORE_SWEEPER_INTERVAL", sweeper.DefaultInterval),
		RetentionWindow:      config.GetEnvDuration("SEARCHCORE_RETENTION_WINDOW", sweeper.DefaultRetentionWindow),
		OverallSearchTimeout: config.GetEnvDuration("SEARCHCORE_SEARCH_OVERALL_TIMEOUT", 30*time.Second),
		OverallAiTimeout:     config.GetEnvDuration("SEARCHCORE_DEEP_OVERALL_TIMEOUT", 10*time.Minute),
		PerSubTaskTimeout:    config.GetEnvDuration("SEARCHCORE_DEEP_PER_SUBTASK_TIMEOUT", 2*time.Minute),
	}
}

func (c domainConfig) callbackURLFor(subTaskID string) string {
	return strings.TrimRight(c.callbackBaseURL, "/") + "/ai/callback?subTaskId=" + subTaskID
}

// newPublisher picks the outbound dispatch transport. Kafka requires at
// least one broker; everything else, including an unset transport,
// falls back to per-provider HTTP POST.
func newPublisher(logger *slog.Logger, cfg domainConfig) dispatch.Publisher {
	if cfg.dispatchTransport == "kafka" && len(cfg.kafkaBrokers) > 0 {
		logger.Info("dispatch transport: kafka", slog.Any("brokers", cfg.kafkaBrokers), slog.String("topic", cfg.kafkaTopic))

		return dispatch.NewKafkaPublisher(cfg.kafkaBrokers, cfg.kafkaTopic)
	}

	logger.Info("dispatch transport: http", slog.Int("providers", len(cfg.httpProviderURLs)))

	return dispatch.NewHTTPPublisher(cfg.httpProviderURLs, cfg.dispatchTimeout)
}

// buildFanout assembles C3's adapter list: the corpus search itself,
// plus one HTTPAdapter per configured external source.
func buildFanout(bus *eventbus.Bus, searcher *corpus.Searcher, cfg domainConfig) *sources.Fanout {
	adapters := make([]sources.Adapter, 0, len(cfg.externalSources)+1)
	adapters = append(adapters, sources.NewCorpusAdapter(searcher, cfg.corpusPageSize))

	for id, baseURL := range cfg.externalSources {
		adapters = append(adapters, sources.NewHTTPAdapter(id, baseURL, cfg.sourceTimeout))
	}

	return sources.New(adapters, bus, sources.Config{PerSourceTimeout: cfg.sourceTimeout})
}

// parseKeyValueList parses "k1=v1,k2=v2" into a map, skipping malformed
// or empty entries. Used for both provider dispatch URLs and external
// source base URLs, both keyed by an identifier.
func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)

	for _, entry := range config.ParseCommaSeparatedList(raw) {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" || value == "" {
			continue
		}

		result[key] = value
	}

	return result
}
