// Command rpki-validator fetches, validates, and serves RPKI data: a
// thin CLI over the internal packages, sequenced by engine.Runner into
// fetch, validate, publish, and a final report/serve phase chosen by the
// subcommand.
package main

import (
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/yaoyj11/rpki-validator/engine"
	"github.com/yaoyj11/rpki-validator/internal/check"
	"github.com/yaoyj11/rpki-validator/internal/eventbus"
	"github.com/yaoyj11/rpki-validator/internal/fetch"
	"github.com/yaoyj11/rpki-validator/internal/fixturestore"
	"github.com/yaoyj11/rpki-validator/internal/httpapi"
	"github.com/yaoyj11/rpki-validator/internal/report"
	"github.com/yaoyj11/rpki-validator/internal/rtrpdu"
	"github.com/yaoyj11/rpki-validator/internal/rtrserver"
	"github.com/yaoyj11/rpki-validator/internal/store"
	"github.com/yaoyj11/rpki-validator/internal/walker"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "rpki-validator:", err)
		os.Exit(1)
	}
}

func usage(f *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage: rpki-validator [OPTIONS] <validate|serve-rtr|report>")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	f.PrintDefaults()
}

// runState is what each phase hands to the phases after it: there is no
// return-value pipe between engine.Phase implementations, so a Runner's
// phases share state through a pointer they all close over instead.
type runState struct {
	fixturePath string
	taURL       string
	runID       uuid.UUID
	start       time.Time

	fx       *fixturestore.Store
	issuer   store.CertificateContext
	fetchSvc *fetch.Service

	res  walker.Result
	vrps []store.VRP

	kafkaBroker string
	kafkaTopic  string
	httpAddr    string
	rtrAddr     string
	rtrMD5      string
}

func run(args []string) error {
	f := pflag.NewFlagSet("rpki-validator", pflag.ContinueOnError)
	f.SortFlags = false
	f.Usage = func() { usage(f) }

	f.StringP("log", "l", "info", "log level (debug/info/warn/error)")
	f.String("fixture", "", "path to the JSON object-fixture file")
	f.String("ta", "", "trust anchor certificate URL (must match the fixture's root object url)")
	f.String("rtr-addr", ":8282", "address to serve RTR sessions on")
	f.String("rtr-md5", "", "TCP-MD5 password for RTR sessions (Linux only)")
	f.String("http-addr", ":8080", "address to serve the operator HTTP API on")
	f.String("kafka-broker", "", "Kafka broker for run-summary events (empty disables)")
	f.String("kafka-topic", "rpki.run.completed", "Kafka topic for run-summary events")

	if err := f.Parse(args); err != nil {
		return err
	}

	// bind flags into koanf so subcommand logic reads config through one path
	k := koanf.New(".")
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return fmt.Errorf("load flags into config: %w", err)
	}

	lvl, err := zerolog.ParseLevel(k.String("log"))
	if err != nil {
		return fmt.Errorf("--log: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)

	rem := f.Args()
	if len(rem) == 0 {
		usage(f)
		return fmt.Errorf("missing subcommand")
	}
	cmd := rem[0]

	fixturePath := k.String("fixture")
	if fixturePath == "" {
		return fmt.Errorf("--fixture is required")
	}
	taURL := k.String("ta")
	if taURL == "" {
		return fmt.Errorf("--ta is required")
	}

	st := &runState{
		fixturePath: fixturePath,
		taURL:       taURL,
		runID:       uuid.New(),
		kafkaBroker: k.String("kafka-broker"),
		kafkaTopic:  k.String("kafka-topic"),
		httpAddr:    k.String("http-addr"),
		rtrAddr:     k.String("rtr-addr"),
		rtrMD5:      k.String("rtr-md5"),
	}

	runner := engine.NewRunner()
	runner.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).
		With().Timestamp().Str("run_id", st.runID.String()).Logger()
	runner.K = k

	runner.AddPhase("fetch", newFetchPhase(st))
	runner.AddPhase("validate", newValidatePhase(st))
	runner.AddPhase("publish", newPublishPhase(st))

	switch cmd {
	case "validate":
		runner.AddPhase("report", newReportPhase(st, false))
	case "report":
		runner.AddPhase("report", newReportPhase(st, true))
	case "serve-rtr":
		runner.AddPhase("serve", newServePhase(st))
	default:
		usage(f)
		return fmt.Errorf("unknown subcommand: %s", cmd)
	}

	return runner.Run()
}

// fetchPhase loads the bundled fixture and resolves the trust anchor
// object the validate phase walks from.
type fetchPhase struct {
	*engine.PhaseBase
	st *runState
}

func newFetchPhase(st *runState) engine.NewPhaseFunc {
	return func(base *engine.PhaseBase) engine.Phase {
		return &fetchPhase{PhaseBase: base, st: st}
	}
}

func (p *fetchPhase) Run() error {
	data, err := os.ReadFile(p.st.fixturePath)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	fx, err := fixturestore.Load(data)
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	taObj, ok := fx.GetObject(p.st.taURL)
	if !ok {
		return fmt.Errorf("--ta %s: not found in fixture", p.st.taURL)
	}

	p.st.fx = fx
	p.st.issuer = store.CertificateContext{
		Location:             check.Location(taObj.URL),
		Certificate:          taObj,
		SubjectKeyIdentifier: taObj.Object.SubjectKeyIdentifier,
		RepositoryURI:        taObj.Object.RepositoryURI,
		RPKINotifyURI:        taObj.Object.RPKINotifyURI,
		ManifestURI:          taObj.Object.ManifestURI,
	}
	p.st.fetchSvc = fetch.NewService(fixturestore.NoopFetcher{}, 0, rate.NewLimiter(rate.Inf, 1), p.Logger)
	return nil
}

// validatePhase walks the trust anchor and collects every VRP the walk
// reaches.
type validatePhase struct {
	*engine.PhaseBase
	st *runState
}

func newValidatePhase(st *runState) engine.NewPhaseFunc {
	return func(base *engine.PhaseBase) engine.Phase {
		return &validatePhase{PhaseBase: base, st: st}
	}
}

func (p *validatePhase) Run() error {
	p.st.start = time.Now()
	w := walker.New(p.st.issuer, p.st.fx, p.st.fetchSvc, noopValidator{}, nil, walker.NewSeen(), p.st.start, p.Logger)
	p.st.res = w.Walk(p.Ctx)

	for _, vo := range p.st.res.Objects {
		if vo.Object != nil {
			p.st.vrps = append(p.st.vrps, vo.Object.Object.VRPs...)
		}
	}
	return nil
}

// publishPhase emits a run-summary event to Kafka when a broker is
// configured. A publish failure is logged, never fatal: the event is a
// supplemental surface, not load-bearing for validate/report/serve-rtr.
type publishPhase struct {
	*engine.PhaseBase
	st *runState
}

func newPublishPhase(st *runState) engine.NewPhaseFunc {
	return func(base *engine.PhaseBase) engine.Phase {
		return &publishPhase{PhaseBase: base, st: st}
	}
}

func (p *publishPhase) Run() error {
	publisher, err := eventbus.NewPublisher(p.Ctx, p.st.kafkaBroker, p.st.kafkaTopic, p.Logger)
	if err != nil {
		p.Warn().Err(err).Msg("eventbus: publisher setup failed, continuing without it")
		return nil
	}
	defer publisher.Close()

	summary := eventbus.RunSummary{
		RunID:     p.st.runID,
		StartedAt: p.st.start,
		Duration:  time.Since(p.st.start),
		VRPCount:  len(p.st.vrps),
		Warnings:  len(p.st.res.Checks.Warnings()),
		Rejects:   len(p.st.res.Checks.Rejects()),
	}
	if err := publisher.Publish(p.Ctx, summary); err != nil {
		p.Warn().Err(err).Msg("eventbus: publish failed")
	}
	return nil
}

// reportPhase writes the run summary to stdout, and the full VRP/Check
// tables too when detail is set (the "report" subcommand; "validate"
// wants the summary alone).
type reportPhase struct {
	*engine.PhaseBase
	st     *runState
	detail bool
}

func newReportPhase(st *runState, detail bool) engine.NewPhaseFunc {
	return func(base *engine.PhaseBase) engine.Phase {
		return &reportPhase{PhaseBase: base, st: st, detail: detail}
	}
}

func (p *reportPhase) Run() error {
	summary := report.Summary{
		RunID:    p.st.runID.String(),
		VRPCount: len(p.st.vrps),
		Rejects:  len(p.st.res.Checks.Rejects()),
		Warnings: len(p.st.res.Checks.Warnings()),
	}
	if err := report.WriteSummary(os.Stdout, summary); err != nil {
		return err
	}
	if !p.detail {
		return nil
	}
	fmt.Fprintln(os.Stdout)
	if err := report.WriteVRPs(os.Stdout, p.st.vrps); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout)
	return report.WriteChecks(os.Stdout, p.st.res.Checks)
}

// servePhase starts the operator HTTP API in the background, then blocks
// serving RTR sessions until its context is cancelled.
type servePhase struct {
	*engine.PhaseBase
	st *runState
}

func newServePhase(st *runState) engine.NewPhaseFunc {
	return func(base *engine.PhaseBase) engine.Phase {
		return &servePhase{PhaseBase: base, st: st}
	}
}

func (p *servePhase) Run() error {
	state := httpapi.NewState()
	state.Publish(httpapi.Snapshot{VRPs: p.st.vrps, Checks: p.st.res.Checks, Duration: time.Since(p.st.start)})

	go func() {
		router := httpapi.Router(state, p.Logger)
		p.Info().Str("addr", p.st.httpAddr).Msg("httpapi: listening")
		if err := http.ListenAndServe(p.st.httpAddr, router); err != nil {
			p.Error().Err(err).Msg("httpapi: serve error")
		}
	}()

	srv := &rtrserver.Server{
		Addr:  p.st.rtrAddr,
		MD5:   p.st.rtrMD5,
		Cache: staticCache{nonce: rtrserver.NewNonce(), serial: 1, vrps: p.st.vrps},
		Log:   p.Logger,
	}
	return srv.ListenAndServe(p.Ctx)
}

// noopValidator is the bundled CryptoValidator used by the CLI's demo
// flows: it reports every object as valid. A real deployment replaces
// this with an X.509/CMS validator, the external cryptographic
// collaborator this module treats as out of scope.
type noopValidator struct{}

func (noopValidator) Validate(url string, issuer store.CertificateContext, crl store.CRLLocator, opts store.ValidationOptions, sink store.ResultSink) {
	sink.Report(check.Result{Location: check.Location(url)})
}

// staticCache serves one fixed VRP set to every RTR session, translating
// each store.VRP into the IPv4Prefix/IPv6Prefix PDU rtrserver needs.
type staticCache struct {
	nonce  uint16
	serial uint32
	vrps   []store.VRP
}

func (c staticCache) Snapshot() rtrserver.Snapshot {
	pdus := make([]rtrpdu.PDU, 0, len(c.vrps))
	for _, v := range c.vrps {
		if pdu, ok := vrpToPDU(v); ok {
			pdus = append(pdus, pdu)
		}
	}
	return rtrserver.Snapshot{Nonce: c.nonce, Serial: c.serial, Prefixes: pdus}
}

func vrpToPDU(v store.VRP) (rtrpdu.PDU, bool) {
	prefix, err := netip.ParsePrefix(v.Prefix)
	if err != nil {
		return nil, false
	}
	addr := prefix.Addr()
	if addr.Is4() {
		return rtrpdu.IPv4Prefix{
			Announce:  true,
			PrefixLen: uint8(prefix.Bits()),
			MaxLen:    v.MaxLen,
			Prefix:    addr,
			ASN:       v.ASN,
		}, true
	}
	return rtrpdu.IPv6Prefix{
		Announce:  true,
		PrefixLen: uint8(prefix.Bits()),
		MaxLen:    v.MaxLen,
		Prefix:    addr,
		ASN:       v.ASN,
	}, true
}
