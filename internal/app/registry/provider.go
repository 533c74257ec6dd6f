package registry

import (
	"context"
	"sync"

	"github.com/0xsj/overwatch-pkg/log"
	"github.com/redis/go-redis/v9"

	"github.com/0xsj/overwatch-revocation/internal/adapter/outbound/memory"
	redisadapter "github.com/0xsj/overwatch-revocation/internal/adapter/outbound/redis"
	"github.com/0xsj/overwatch-revocation/internal/config"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/messaging"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/metrics"
)

// ConnectFunc opens a client for the shared backend.
type ConnectFunc func(ctx context.Context, cfg redisadapter.ClientConfig) (*redis.Client, error)

// ProviderConfig holds the dependencies used to build the Registry.
type ProviderConfig struct {
	Registry  config.RegistryConfig
	Redis     config.RedisConfig
	Logger    log.Logger
	Recorder  metrics.Recorder
	Publisher messaging.EventPublisher

	// Connect overrides how the shared backend client is opened.
	Connect ConnectFunc
}

// Provider builds the process-wide Registry on first use and hands out the
// same instance afterwards.
type Provider struct {
	cfg ProviderConfig

	mu       sync.Mutex
	registry *Registry
	client   *redis.Client
}

// NewProvider creates a new Provider. Nothing is connected until Get.
func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.Connect == nil {
		cfg.Connect = redisadapter.Connect
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.Nop{}
	}
	return &Provider{cfg: cfg}
}

// Get returns the Registry, building it on the first call. The backend is
// chosen once from configuration. A failed build is not memoized.
func (p *Provider) Get(ctx context.Context) (*Registry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.registry != nil {
		return p.registry, nil
	}

	backend, err := p.cfg.Registry.SelectBackend(p.cfg.Redis)
	if err != nil {
		return nil, err
	}

	opts := Options{
		Logger:           p.cfg.Logger,
		Recorder:         p.cfg.Recorder,
		Publisher:        p.cfg.Publisher,
		OperationTimeout: p.cfg.Registry.OperationTimeout,
		FailClosed:       !p.cfg.Registry.FailOpen,
	}

	switch backend {
	case config.BackendRedis:
		client, err := p.cfg.Connect(ctx, redisadapter.ClientConfig{
			URL:          p.cfg.Redis.URL,
			Token:        p.cfg.Redis.Token,
			PoolSize:     p.cfg.Redis.PoolSize,
			MinIdleConns: p.cfg.Redis.MinIdleConns,
			DialTimeout:  p.cfg.Redis.DialTimeout,
			ReadTimeout:  p.cfg.Redis.ReadTimeout,
			WriteTimeout: p.cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, err
		}

		p.client = client
		p.registry = New(redisadapter.NewStore(client,
			redisadapter.WithKeyPrefix(p.cfg.Redis.KeyPrefix),
			redisadapter.WithScanCount(p.cfg.Redis.ScanCount),
			redisadapter.WithRecorder(p.cfg.Recorder),
		), opts)

	default:
		if p.cfg.Registry.IsMultiInstance() && p.cfg.Logger != nil {
			p.cfg.Logger.Warn("in-process revocation store selected in a multi-instance deployment; revocations will not be shared between instances",
				log.Any("max_entries", p.cfg.Registry.MaxEntries),
			)
		}

		p.registry = New(memory.New(
			memory.WithMaxEntries(p.cfg.Registry.MaxEntries),
			memory.WithSweepInterval(p.cfg.Registry.SweepInterval),
			memory.WithLogger(p.cfg.Logger),
			memory.WithRecorder(p.cfg.Recorder),
		), opts)
	}

	if p.cfg.Logger != nil {
		p.cfg.Logger.Info("revocation registry initialized",
			log.String("backend", backend),
			log.Any("fail_open", p.cfg.Registry.FailOpen),
		)
	}

	return p.registry, nil
}

// Close releases the Registry and its backend connection. A later Get
// builds a fresh Registry.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.registry != nil {
		firstErr = p.registry.Close()
		p.registry = nil
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.client = nil
	}
	return firstErr
}

// Reset discards the memoized Registry. For tests only.
func (p *Provider) Reset() {
	_ = p.Close()
}

// NewMemoryRegistry creates an isolated Registry over a fresh in-process
// store, independent of any Provider.
func NewMemoryRegistry(opts Options, storeOpts ...memory.Option) *Registry {
	if opts.Logger != nil {
		storeOpts = append([]memory.Option{memory.WithLogger(opts.Logger)}, storeOpts...)
	}
	if opts.Recorder != nil {
		storeOpts = append([]memory.Option{memory.WithRecorder(opts.Recorder)}, storeOpts...)
	}
	if opts.Now != nil {
		storeOpts = append([]memory.Option{memory.WithClock(opts.Now)}, storeOpts...)
	}
	return New(memory.New(storeOpts...), opts)
}
