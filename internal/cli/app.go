package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/PipeOpsHQ/agent-backend/connection"
	"github.com/PipeOpsHQ/agent-backend/credential"
	"github.com/PipeOpsHQ/agent-backend/eval"
	"github.com/PipeOpsHQ/agent-backend/guardrail"
	"github.com/PipeOpsHQ/agent-backend/integrations/github"
	"github.com/PipeOpsHQ/agent-backend/integrations/gmail"
	"github.com/PipeOpsHQ/agent-backend/internal/api"
	"github.com/PipeOpsHQ/agent-backend/internal/config"
	"github.com/PipeOpsHQ/agent-backend/observe"
	"github.com/PipeOpsHQ/agent-backend/observe/clickhouse"
	otelsink "github.com/PipeOpsHQ/agent-backend/observe/otel"
	observestore "github.com/PipeOpsHQ/agent-backend/observe/store"
	"github.com/PipeOpsHQ/agent-backend/runtimeconfig"
	"github.com/PipeOpsHQ/agent-backend/store/factory"
	"github.com/PipeOpsHQ/agent-backend/tools"
)

// version is overridden at build time with -ldflags "-X ...cli.version=".
var version = "dev"

var (
	defaultInputGuardrails  = []string{"sanitize"}
	defaultOutputGuardrails = []string{"secret_guard"}
)

// app is one fully wired process: stores, sinks, the remote session, the
// tool registry and the live eval pipeline.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	stores      *factory.Stores
	resolver    *credential.Resolver
	remote      *connection.Manager
	github      *github.Client
	interceptor *observe.Interceptor
	registry    *tools.Registry
	guardrails  *guardrail.Pipeline
	pipeline    *eval.Pipeline
	oauth       *oauth2.Config

	async      *observe.AsyncSink
	evalWriter *eval.Writer
	analytics  *clickhouse.Writer
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	rc, err := loadRuntimeConfig(cfg)
	if err != nil {
		return nil, err
	}

	stores, err := factory.FromConfig(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, stores: stores}

	sinks := []observe.Sink{observestore.NewSink(stores.Telemetry)}
	if cfg.OTelEnabled {
		sinks = append(sinks, otelsink.NewSink(otel.GetTracerProvider()))
	}
	if dsn := strings.TrimSpace(cfg.ClickHouseDSN); dsn != "" {
		w, err := clickhouse.Open(ctx, dsn, logger.Named("clickhouse"))
		if err != nil {
			logger.Warn("clickhouse disabled", zap.Error(err))
		} else {
			a.analytics = w
			sinks = append(sinks, w)
		}
	}
	a.async = observe.NewAsyncSink(observe.NewMultiSink(sinks...), cfg.Eval.QueueSize, logger.Named("telemetry"))
	a.interceptor = observe.NewInterceptor(a.async, logger.Named("interceptor"))

	a.resolver = credential.NewResolver(stores.Credentials, credential.WithAuthURL(credential.AuthLinkBuilder(cfg.BaseURL)))
	a.remote = connection.NewManager(
		connection.NewStreamableDialer(cfg.GitHub.MCPURL, connection.ClientInfo{Name: "agent-backend", Version: version}),
		a.resolver,
		connection.WithFallbackToken(cfg.GitHub.FallbackToken),
		connection.WithHandshakeTimeout(cfg.GitHub.HandshakeTimeout),
		connection.WithLogger(logger.Named("mcp")),
	)
	a.github = github.NewClient(cfg.GitHub.APIURL)

	if a.registry, err = a.buildRegistry(ctx, rc); err != nil {
		a.Close()
		return nil, err
	}
	if a.guardrails, err = a.buildGuardrails(rc); err != nil {
		a.Close()
		return nil, err
	}
	if a.pipeline, err = a.buildPipeline(rc); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.OAuthEnabled() {
		a.oauth = api.GitHubOAuthConfig(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.BaseURL+"/api/auth/github/callback")
	}
	return a, nil
}

func loadRuntimeConfig(cfg *config.Config) (runtimeconfig.Config, error) {
	if strings.TrimSpace(cfg.Eval.ConfigPath) == "" {
		return runtimeconfig.Config{}, nil
	}
	rc, err := runtimeconfig.Load(cfg.Eval.ConfigPath)
	if err != nil {
		return runtimeconfig.Config{}, fmt.Errorf("load %s: %w", cfg.Eval.ConfigPath, err)
	}
	return rc, nil
}

func (a *app) buildRegistry(ctx context.Context, rc runtimeconfig.Config) (*tools.Registry, error) {
	all := tools.NewRegistry()
	all.MustRegister(tools.NewCalculator())
	gh := &tools.GitHubTools{
		Remote:  a.remote,
		API:     a.github,
		Tokens:  a.resolver,
		AuthURL: credential.AuthLinkBuilder(a.cfg.BaseURL),
	}
	all.MustRegister(gh.Tools()...)
	if g := a.cfg.Gmail; g.Enabled() {
		sender := gmail.NewSender(gmail.RefreshTokenSource(ctx, g.ClientID, g.ClientSecret, g.RefreshToken))
		all.MustRegister(tools.NewSendEmail(sender))
	} else {
		a.logger.Info("gmail credentials not set; send_email disabled")
	}

	selected, err := all.Select(rc.Tools)
	if err != nil {
		return nil, fmt.Errorf("select tools: %w", err)
	}
	selected.Wrap(a.interceptor.WrapTool)
	return selected, nil
}

func (a *app) buildGuardrails(rc runtimeconfig.Config) (*guardrail.Pipeline, error) {
	input := rc.Guardrails
	if len(input) == 0 {
		input = defaultInputGuardrails
	}
	p := guardrail.NewPipeline()
	for _, name := range input {
		g, err := guardrail.Builtin(name)
		if err != nil {
			return nil, err
		}
		p.AddInput(g)
	}
	for _, name := range defaultOutputGuardrails {
		g, err := guardrail.Builtin(name)
		if err != nil {
			return nil, err
		}
		p.AddOutput(g)
	}
	return p.Wrap(a.interceptor.WrapGuardrail), nil
}

// buildPipeline returns nil when live scoring is disabled.
func (a *app) buildPipeline(rc runtimeconfig.Config) (*eval.Pipeline, error) {
	if !rc.Eval.IsEnabled() {
		a.logger.Info("live evaluation disabled by runtime config")
		return nil, nil
	}
	scorers, err := eval.ScorersByID(rc.Eval.Scorers)
	if err != nil {
		return nil, err
	}
	rate := a.cfg.Eval.SamplingRate
	if rc.Eval.SamplingRate != nil {
		rate = *rc.Eval.SamplingRate
	}

	var analytics eval.Recorder
	if a.analytics != nil {
		analytics = a.analytics
	}
	a.evalWriter = eval.NewWriter(eval.MultiRecorder(a.stores.Telemetry, analytics), a.cfg.Eval.QueueSize, a.logger.Named("eval-writer"))

	p := eval.NewPipeline(scorers,
		eval.WithSamplingRate(rate),
		eval.WithRecorder(a.evalWriter),
		eval.WithLogger(a.logger.Named("eval")),
	)
	a.logger.Info("live evaluation enabled",
		zap.Float64("sampling_rate", rate),
		zap.Strings("scorers", p.ScorerIDs()),
	)
	return p, nil
}

func (a *app) serverConfig() api.Config {
	cfg := api.Config{
		Logger:        a.logger.Named("api"),
		Credentials:   a.stores.Credentials,
		Telemetry:     a.stores.Telemetry,
		Tools:         a.registry,
		Guardrails:    a.guardrails,
		Remote:        a.remote,
		OAuth:         a.oauth,
		Users:         a.github,
		DefaultUserID: a.cfg.DefaultUserID,
	}
	if a.pipeline != nil {
		cfg.Evaluator = a.pipeline
	}
	return cfg
}

// Close drains pending scoring and telemetry before closing connections.
func (a *app) Close() error {
	if a.pipeline != nil {
		a.pipeline.Wait()
	}
	if a.evalWriter != nil {
		a.evalWriter.Close()
	}
	if a.async != nil {
		a.async.Close()
	}
	var errs []error
	if a.analytics != nil {
		errs = append(errs, a.analytics.Close())
	}
	if a.remote != nil {
		errs = append(errs, a.remote.Close())
	}
	errs = append(errs, a.stores.Close())
	return errors.Join(errs...)
}
