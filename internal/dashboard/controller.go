package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-dashboard/internal/api"
	"storefront-dashboard/internal/metrics"
	"storefront-dashboard/internal/model"
	"storefront-dashboard/internal/notify"
)

var (
	ErrInvalidRange   = errors.New("invalid date range")
	ErrNotStarted     = errors.New("dashboard controller not started")
	ErrStopped        = errors.New("dashboard controller stopped")
	ErrAlreadyStarted = errors.New("dashboard controller already started")
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultRangeDays      = 30

	eventBuffer   = 64
	notifyTimeout = 10 * time.Second
	saleTitle     = "New sale"
)

// Fetcher loads the four dashboard aggregates for rng.
type Fetcher func(ctx context.Context, token string, rng model.DateRange) (model.RawReport, error)

// CredentialSource yields the bearer token. An error or an empty token means the
// user has to log in.
type CredentialSource interface {
	Token() (string, error)
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *zap.Logger) Option { return func(c *Controller) { c.logger = l } }

func WithScheduler(s Scheduler) Option { return func(c *Controller) { c.scheduler = s } }

func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

func WithNotifiers(n ...notify.Notifier) Option {
	return func(c *Controller) { c.notifiers = append(c.notifiers, n...) }
}

func WithReconnectDelay(d time.Duration) Option { return func(c *Controller) { c.reconnectDelay = d } }

// WithDiscardStale drops fetch results older than the latest issued request instead of
// applying them in arrival order.
func WithDiscardStale(on bool) Option { return func(c *Controller) { c.discardStale = on } }

func WithReportEngine(e *model.ReportEngine) Option { return func(c *Controller) { c.engine = e } }

// WithRange sets the initial date range; the default is the last 30 days.
func WithRange(r model.DateRange) Option { return func(c *Controller) { c.rng = r } }

// loop events
type (
	evStart     struct{}
	evStop      struct{}
	evRefresh   struct{}
	evSetRange  struct{ rng model.DateRange }
	evReconnect struct{ timerGen uint64 }
	evOpened    struct {
		gen    uint64
		stream api.Stream
	}
	evDialFailed struct {
		gen uint64
		err error
	}
	evStream struct {
		gen uint64
		ev  api.StreamEvent
	}
	evFetched struct {
		seq uint64
		rng model.DateRange
		raw model.RawReport
		err error
	}
)

// Controller keeps one dashboard view in sync with the backend: it owns the push
// connection, re-fetches aggregates on every sale and on range changes, and keeps
// the bounded notification log.
//
// All state lives on a single event-loop goroutine; every public method posts to it.
type Controller struct {
	dialer  api.Dialer
	fetch   Fetcher
	creds   CredentialSource
	logger  *zap.Logger
	engine  *model.ReportEngine
	machine *StateMachine
	log     *model.NotificationLog

	notifiers      []notify.Notifier
	scheduler      Scheduler
	now            func() time.Time
	reconnectDelay time.Duration
	discardStale   bool

	events chan any
	done   chan struct{} // closed when the loop starts shutting down
	exited chan struct{} // closed once the loop has returned

	dialCtx    context.Context
	cancelDial context.CancelFunc
	dials      sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	started   chan struct{}

	// loop-owned
	rng      model.DateRange
	view     View
	gen      uint64
	active   api.Stream
	timer    Timer
	timerGen uint64
	seq      uint64
	inflight int

	viewMu    sync.RWMutex
	published View

	subMu     sync.Mutex
	subs      map[uint64]func(View)
	nextSubID uint64
}

func NewController(dialer api.Dialer, fetch Fetcher, creds CredentialSource, opts ...Option) *Controller {
	c := &Controller{
		dialer:         dialer,
		fetch:          fetch,
		creds:          creds,
		logger:         zap.NewNop(),
		engine:         model.NewReportEngine(0),
		log:            model.NewNotificationLog(model.NotificationCapacity),
		scheduler:      realScheduler{},
		now:            time.Now,
		reconnectDelay: DefaultReconnectDelay,
		events:         make(chan any, eventBuffer),
		done:           make(chan struct{}),
		exited:         make(chan struct{}),
		started:        make(chan struct{}),
		subs:           make(map[uint64]func(View)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "dashboard"))
	c.machine = NewStateMachine(c.logger)

	if c.rng.Start.IsZero() && c.rng.End.IsZero() {
		c.rng = model.LastDays(c.now(), DefaultRangeDays)
	}
	c.dialCtx, c.cancelDial = context.WithCancel(context.Background())

	c.view = View{State: StateIdle, Status: StatusDisconnected, Range: c.rng}
	c.published = c.view.clone()
	return c
}

// Start opens the push stream and issues the initial fetch. Cancelling ctx stops the
// controller.
func (c *Controller) Start(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	err := ErrAlreadyStarted
	c.startOnce.Do(func() {
		err = nil
		close(c.started)
		go c.run()
		c.post(evStart{})
		go func() {
			select {
			case <-ctx.Done():
				c.Stop()
			case <-c.exited:
			}
		}()
	})
	return err
}

// Stop closes the connection, cancels a pending reconnect and terminates the
// controller. In-flight fetches are not cancelled; their results are dropped.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		select {
		case <-c.started:
		default:
			c.startOnce.Do(func() {}) // never start after Stop
			c.cancelDial()
			close(c.done)
			close(c.exited)
			return
		}
		c.post(evStop{})
	})
	<-c.exited
}

// SetRange changes the date range and re-fetches.
func (c *Controller) SetRange(rng model.DateRange) error {
	if err := rng.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	return c.postPublic(evSetRange{rng: rng})
}

// Refresh re-fetches the current range.
func (c *Controller) Refresh() error {
	return c.postPublic(evRefresh{})
}

// Subscribe registers fn for every published view and returns the unsubscribe func.
// fn runs on the controller goroutine and must not block.
func (c *Controller) Subscribe(fn func(View)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// View returns a copy of the latest published view.
func (c *Controller) View() View {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.published.clone()
}

// Notifications returns the notification log, newest first.
func (c *Controller) Notifications() []model.Notification {
	return c.log.Entries()
}

// Done is closed once the controller has terminated its loop.
func (c *Controller) Done() <-chan struct{} { return c.exited }

func (c *Controller) postPublic(ev any) error {
	select {
	case <-c.started:
	default:
		return ErrNotStarted
	}
	if !c.post(ev) {
		return ErrStopped
	}
	return nil
}

func (c *Controller) post(ev any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) run() {
	defer close(c.exited)

	for ev := range c.events {
		if stop := c.handle(ev); stop {
			break
		}
	}
	c.shutdown()
}

func (c *Controller) handle(ev any) (stop bool) {
	switch e := ev.(type) {
	case evStart:
		c.connect()
		c.refresh()
	case evStop:
		c.terminate()
		return true
	case evRefresh:
		c.refresh()
	case evSetRange:
		c.rng = e.rng
		c.view.Range = e.rng
		c.publish()
		c.refresh()
	case evReconnect:
		c.onReconnect(e)
	case evOpened:
		c.onOpened(e)
	case evDialFailed:
		c.onDialFailed(e)
	case evStream:
		c.onStreamEvent(e)
	case evFetched:
		c.onFetched(e)
	}
	return false
}

// shutdown stops accepting events and releases streams whose open event was never
// handled.
func (c *Controller) shutdown() {
	close(c.done)
	c.cancelDial()
	c.dials.Wait()

	for {
		select {
		case ev := <-c.events:
			if o, ok := ev.(evOpened); ok {
				_ = o.stream.Close()
			}
		default:
			return
		}
	}
}

func (c *Controller) transition(next ConnState) {
	if err := c.machine.Transition(next); err != nil {
		c.logger.Warn("Ignoring state change", zap.Error(err))
		return
	}
	c.view.State = next
}

func (c *Controller) token() (string, bool) {
	token, err := c.creds.Token()
	if err != nil || token == "" {
		if err != nil {
			c.logger.Debug("No credential available", zap.Error(err))
		}
		return "", false
	}
	return token, true
}

// connect starts a new connection attempt, superseding any previous one.
func (c *Controller) connect() {
	c.closeActive()
	c.gen++
	gen := c.gen

	c.transition(StateConnecting)
	c.view.Status = StatusConnecting

	token, ok := c.token()
	if !ok {
		c.logger.Warn("No credential, login required before connecting")
		c.requireLogin()
		return
	}
	c.publish()

	c.dials.Add(1)
	go func() {
		stream, err := c.dialer.Open(c.dialCtx, token)
		if err != nil {
			c.post(evDialFailed{gen: gen, err: err})
			c.dials.Done()
			return
		}
		posted := c.post(evOpened{gen: gen, stream: stream})
		c.dials.Done()
		if !posted {
			_ = stream.Close()
			return
		}
		stream.Run(func(ev api.StreamEvent) {
			c.post(evStream{gen: gen, ev: ev})
		})
	}()
}

func (c *Controller) closeActive() {
	if c.active == nil {
		return
	}
	if err := c.active.Close(); err != nil {
		c.logger.Debug("Closing push stream", zap.Error(err))
	}
	c.active = nil
	metrics.PushConnected.Set(0)
}

func (c *Controller) onOpened(e evOpened) {
	if e.gen != c.gen || c.machine.Current() != StateConnecting {
		_ = e.stream.Close()
		return
	}
	c.active = e.stream
	metrics.PushConnected.Set(1)
	c.transition(StateConnected)
	c.view.Status = StatusConnected
	c.publish()
}

func (c *Controller) onDialFailed(e evDialFailed) {
	if e.gen != c.gen {
		return
	}
	c.logger.Warn("Push stream dial failed", zap.Error(e.err))
	c.onClose(api.CloseAbnormal, e.err.Error())
}

func (c *Controller) onStreamEvent(e evStream) {
	if e.gen != c.gen || c.active == nil {
		return
	}

	switch e.ev.Kind {
	case api.EventMessage:
		c.onMessage(e.ev.Data)
	case api.EventError:
		c.logger.Warn("Push stream error", zap.Error(e.ev.Err))
		c.view.Status = StatusError
		c.publish()
	case api.EventClose:
		c.active = nil
		metrics.PushConnected.Set(0)
		c.onClose(e.ev.Code, e.ev.Reason)
	}
}

// onClose handles the end of a connection: policy violations end the session, any
// other code schedules exactly one reconnect.
func (c *Controller) onClose(code int, reason string) {
	c.transition(StateDisconnected)
	c.view.Status = StatusDisconnected
	c.logger.Info("Push stream closed", zap.Int("code", code), zap.String("reason", reason))

	if code == api.ClosePolicyViolation {
		c.logger.Warn("Push stream rejected the credential, login required")
		c.view.LoginRequired = true
		c.transition(StateTerminated)
		c.publish()
		return
	}

	c.transition(StateReconnecting)
	c.scheduleReconnect()
	c.publish()
}

func (c *Controller) scheduleReconnect() {
	c.cancelTimer()
	c.timerGen++
	tg := c.timerGen
	c.timer = c.scheduler.AfterFunc(c.reconnectDelay, func() {
		c.post(evReconnect{timerGen: tg})
	})
	metrics.PushReconnects.Inc()
	c.logger.Info("Reconnect scheduled", zap.Duration("delay", c.reconnectDelay))
}

func (c *Controller) cancelTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) onReconnect(e evReconnect) {
	if e.timerGen != c.timerGen || c.machine.Current() != StateReconnecting {
		return
	}
	c.timer = nil
	c.connect()
}

func (c *Controller) onMessage(data []byte) {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		metrics.PushMessages.WithLabelValues("invalid").Inc()
		c.logger.Warn("Discarding malformed push message", zap.Error(err))
		return
	}

	kind := "other"
	if env.Type == model.KindNewSale {
		kind = model.KindNewSale
	}
	metrics.PushMessages.WithLabelValues(kind).Inc()

	if env.Type != model.KindNewSale {
		c.logger.Debug("Ignoring push message", zap.String("type", env.Type))
		return
	}

	var sale model.SaleEvent
	if err := json.Unmarshal(env.Data, &sale); err != nil {
		c.logger.Warn("Discarding malformed sale event", zap.Error(err))
		return
	}

	n := model.Notification{ID: uuid.NewString(), Message: sale.Message(), ReceivedAt: c.now()}
	c.log.Push(n)
	c.view.Notifications = c.log.Entries()
	c.notify(n.Message)
	c.publish()
	c.refresh()
}

// notify fans the message out to every notifier without waiting.
func (c *Controller) notify(message string) {
	for _, n := range c.notifiers {
		go func(n notify.Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := n.Notify(ctx, saleTitle, message); err != nil {
				c.logger.Warn("Notification failed", zap.Error(err))
			}
		}(n)
	}
}

func (c *Controller) refresh() {
	token, ok := c.token()
	if !ok {
		metrics.Refreshes.WithLabelValues("no_credential").Inc()
		c.logger.Warn("Credential no longer available, login required")
		c.requireLogin()
		return
	}

	c.seq++
	seq, rng := c.seq, c.rng
	c.inflight++
	c.view.Loading = true
	c.publish()

	go func() {
		// not tied to Stop; the result is dropped if the loop is gone
		raw, err := c.fetch(context.Background(), token, rng)
		c.post(evFetched{seq: seq, rng: rng, raw: raw, err: err})
	}()
}

func (c *Controller) onFetched(e evFetched) {
	c.inflight--
	c.view.Loading = c.inflight > 0

	if c.discardStale && e.seq < c.seq {
		metrics.Refreshes.WithLabelValues("stale").Inc()
		c.logger.Debug("Dropping stale dashboard response", zap.Uint64("seq", e.seq), zap.Uint64("latest", c.seq))
		c.publish()
		return
	}

	if e.err != nil {
		metrics.Refreshes.WithLabelValues("error").Inc()
		c.logger.Error("Dashboard refresh failed", zap.Stringer("range", e.rng), zap.Error(e.err))
		c.view.LastError = e.err.Error()
		c.publish()
		return
	}

	now := c.now()
	c.view.Snapshot = c.engine.Build(e.raw, e.rng, now)
	c.view.HasSnapshot = true
	c.view.LastRefresh = now
	c.view.LastError = ""
	metrics.Refreshes.WithLabelValues("success").Inc()
	c.publish()
}

// requireLogin ends the session: the user has to log in before anything else can
// be fetched or pushed.
func (c *Controller) requireLogin() {
	c.cancelTimer()
	c.closeActive()
	c.gen++
	c.view.LoginRequired = true
	c.transition(StateTerminated)
	c.view.Status = StatusDisconnected
	c.publish()
}

func (c *Controller) terminate() {
	c.cancelTimer()
	c.closeActive()
	c.gen++ // ignore anything the closed stream still reports
	c.transition(StateTerminated)
	c.view.Status = StatusDisconnected
	c.publish()
	c.logger.Info("Dashboard stopped")
}

func (c *Controller) publish() {
	snapshot := c.view.clone()

	c.viewMu.Lock()
	c.published = snapshot
	c.viewMu.Unlock()

	c.subMu.Lock()
	subs := make([]func(View), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(snapshot.clone())
	}
}
